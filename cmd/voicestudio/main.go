// Voicestudio turns multi-character scripts into synthesized speech,
// falling back between on-device and remote synthesis backends.
//
// Usage:
//
//	voicestudio serve [--config /path/to/voicestudio.yaml]
//	voicestudio generate script.yaml --out ./audio
//	voicestudio emotions list
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nadzzz/voicestudio/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLI colour scheme.
var (
	titleColour   = color.New(color.FgCyan, color.Bold)
	successColour = color.New(color.FgGreen)
	infoColour    = color.New(color.FgBlue)
	warnColour    = color.New(color.FgYellow)
	errorColour   = color.New(color.FgRed, color.Bold)
)

var (
	configFile string
	cfg        *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "voicestudio",
		Short:         "Multi-character text-to-speech studio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			config.SetupLogging(cfg.Logging)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/voicestudio.local.yaml)")

	rootCmd.AddCommand(
		serveCmd(),
		generateCmd(),
		emotionsCmd(),
		voicesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(*cobra.Command, []string) {
				fmt.Printf("voicestudio %s\n", version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		errorColour.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
