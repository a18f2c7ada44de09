package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phoenixlabs/phoenix/internal/config"
)

var (
	configureProvider     string
	configureModel        string
	configureOpenAIKey    string
	configureAnthropicKey string
	configureExchangeKey  string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the phoenix configuration file",
	Long: `Write the phoenix configuration file with defaults plus the values
given as flags. API keys left unset fall back to the standard environment
variables at startup.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "openai", "AI provider (openai, anthropic)")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model name (provider default when empty)")
	configureCmd.Flags().StringVar(&configureOpenAIKey, "openai-key", "", "OpenAI API key")
	configureCmd.Flags().StringVar(&configureAnthropicKey, "anthropic-key", "", "Anthropic API key")
	configureCmd.Flags().StringVar(&configureExchangeKey, "exchange-key", "", "exchange rate API key for the currency tool")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	cfg.AI.Provider = configureProvider
	if configureModel != "" {
		cfg.AI.Model = configureModel
	}
	if configureOpenAIKey != "" {
		cfg.AI.OpenAIKey = configureOpenAIKey
	}
	if configureAnthropicKey != "" {
		cfg.AI.AnthropicKey = configureAnthropicKey
	}
	if configureExchangeKey != "" {
		cfg.Tools.ExchangeAPIKey = configureExchangeKey
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Println("You can now start phoenix with: phoenix start")

	return nil
}
