package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoenixlabs/phoenix/internal/config"
)

func TestRunConfigure_WritesConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "phoenix.json")

	prevCfgFile, prevProvider, prevKey := cfgFile, configureProvider, configureOpenAIKey
	cfgFile = configPath
	configureProvider = "openai"
	configureOpenAIKey = "sk-test-configure"
	defer func() {
		cfgFile, configureProvider, configureOpenAIKey = prevCfgFile, prevProvider, prevKey
	}()

	require.NoError(t, runConfigure(configureCmd, nil))

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-test-configure", cfg.AI.OpenAIKey)
}
