package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server.

Prints every validation error found, or a summary of the configuration
when it is valid. Exits non-zero on invalid configuration.

Examples:
  # Validate the default config file
  janus validate

  # Validate a specific file
  janus validate --config /etc/janus/janus.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ Configuration invalid (%d errors):\n", len(verr.Errors))
			for _, fieldErr := range verr.Errors {
				fmt.Printf("  - %s\n", fieldErr.Error())
			}
			return fmt.Errorf("%d validation errors in %s", len(verr.Errors), cfgFile)
		}
		return err
	}

	fmt.Println("✓ Configuration valid")
	fmt.Printf("  Listener:   %s\n", cfg.Server.Addr())
	fmt.Printf("  Management: %s (enabled: %t)\n", cfg.Management.Addr(), cfg.Management.IsEnabled())
	fmt.Printf("  Upstreams:  %d\n", len(cfg.Upstreams))
	fmt.Printf("  Routes:     %d\n", len(cfg.Routes))
	fmt.Printf("  Statics:    %d\n", len(cfg.StaticFiles))
	return nil
}
