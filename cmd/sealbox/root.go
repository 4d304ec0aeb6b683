package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sealbox "github.com/sealbox/client-go"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sealbox",
	Short: "Sealbox CLI - test email flows with end-to-end encrypted inboxes",
	Long: `sealbox manages disposable email inboxes for automated testing.

Inboxes are end-to-end encrypted with post-quantum algorithms
(ML-KEM-768, ML-DSA-65); the server never sees email content and all
decryption happens locally.

Configuration is read from flags, SEALBOX_* environment variables and
the config file, in that order of precedence.

Examples:
  sealbox inbox create
  sealbox wait --subject-regex "password reset" --timeout 30s
  LINK=$(sealbox wait --subject "Verify" --extract-link)`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.config/sealbox/config.yaml)")
	rootCmd.PersistentFlags().String("api-key", "", "Sealbox API key")
	rootCmd.PersistentFlags().String("url", "", "API base URL")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "Output format: pretty, json")

	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("url"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err == nil {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("SEALBOX")
	viper.AutomaticEnv()
	viper.SetDefault("strategy", "auto")

	// A missing config file is fine; flags and env still apply.
	_ = viper.ReadInConfig()
}

// configDir returns the sealbox config directory, honoring
// SEALBOX_CONFIG_DIR for tests and sandboxed environments.
func configDir() (string, error) {
	if dir := os.Getenv("SEALBOX_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sealbox"), nil
}

// newClient builds an SDK client from the resolved configuration.
func newClient() (*sealbox.Client, error) {
	apiKey := viper.GetString("api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured; set SEALBOX_API_KEY or --api-key")
	}

	opts := []sealbox.Option{}
	if url := viper.GetString("base_url"); url != "" {
		opts = append(opts, sealbox.WithBaseURL(url))
	}
	switch viper.GetString("strategy") {
	case "push":
		opts = append(opts, sealbox.WithDeliveryStrategy(sealbox.StrategyPush))
	case "polling":
		opts = append(opts, sealbox.WithDeliveryStrategy(sealbox.StrategyPolling))
	default:
		opts = append(opts, sealbox.WithDeliveryStrategy(sealbox.StrategyAuto))
	}

	return sealbox.New(apiKey, opts...)
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}
