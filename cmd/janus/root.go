package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "janus",
	Short: "Janus - reverse proxy and static file server",
	Long: `Janus is a reverse proxy and static file server with live configuration
reloads and a WebSocket management control plane.

It routes HTTP traffic to weighted upstream pools, providing:
  - Ordered route matching with path rewriting and header templating
  - Round-robin, least-connections, random and IP-hash load balancing
  - Active health probing with automatic failover and retry
  - Static file serving with optional directory listings
  - Zero-downtime configuration reloads from file changes`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "janus.toml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
