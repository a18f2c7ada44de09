package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()
	assert.Equal(t, "phoenix", root.Use)
	assert.Equal(t, version, root.Version)
	assert.NotEmpty(t, GetVersion())
}

func TestSubcommandsRegistered(t *testing.T) {
	root := GetRootCmd()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}

	for _, name := range []string{"configure", "start", "status", "stop"} {
		assert.True(t, names[name], "missing command %s", name)
	}
}

func TestGlobalFlags(t *testing.T) {
	root := GetRootCmd()

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}
