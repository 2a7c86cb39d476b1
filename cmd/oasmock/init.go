package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/go-oasmock/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration and the recordings directory",
	Long: `Creates the default configuration file (config.yaml) and the recordings
directory.

If config.yaml already exists, it will not be overwritten unless --force is used.`,
	RunE: runInit,
}

var (
	initForce bool
	initPath  string
	initSpec  string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Path where to initialize (default: current directory)")
	initCmd.Flags().StringVarP(&initSpec, "spec", "s", "", "OpenAPI document to reference from the config")
}

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	out := cmd.OutOrStdout()

	configFile := filepath.Join(absPath, "config.yaml")
	if _, err := os.Stat(configFile); err == nil && !initForce {
		return fmt.Errorf("config.yaml already exists. Use --force to overwrite")
	}

	cfg := config.Default()
	if initSpec != "" {
		cfg.Spec.Source = initSpec
	}

	recordingsDir := cfg.Recording.Dir
	if !filepath.IsAbs(recordingsDir) {
		recordingsDir = filepath.Join(absPath, recordingsDir)
	}
	if err := os.MkdirAll(recordingsDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", recordingsDir, err)
	}
	fmt.Fprintf(out, "Created directory: %s\n", recordingsDir)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	header := `# oasmock configuration
# Every key can be overridden with an OASMOCK_ environment variable,
# e.g. OASMOCK_SERVER_PORT=9090 or OASMOCK_MOCK_MOCKBYDEFAULT=true.

`
	if err := os.WriteFile(configFile, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(out, "Created config file: %s\n", configFile)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Initialization complete! You can now start the server with:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  cd %s\n", absPath)
	fmt.Fprintln(out, "  oasmock serve")
	fmt.Fprintln(out)

	return nil
}
