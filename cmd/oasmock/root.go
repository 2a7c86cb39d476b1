package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/go-oasmock/internal/config"
)

var (
	cfgFile string
	cfgErr  error
	v       = config.NewViper()
	rootCmd = &cobra.Command{
		Use:   "oasmock",
		Short: "oasmock - OpenAPI mock, record and replay server",
		Long: `oasmock serves mocked responses synthesized from an OpenAPI 3 document.
Requests that are not mocked are forwarded to an optional upstream and can be
recorded for later replay.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateCmd)
}

// initConfig reads in the config file, if any. Defaults and OASMOCK_*
// environment variables are registered by config.NewViper.
func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		v.AddConfigPath(cwd)
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	err := v.ReadInConfig()
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	case cfgFile == "" && errors.As(err, &viper.ConfigFileNotFoundError{}):
		// no config.yaml: defaults and environment only
	default:
		cfgErr = fmt.Errorf("read config: %w", err)
	}
}

// loadConfig decodes the merged file, environment and flag settings
func loadConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	return config.FromViper(v)
}
