// Package cmd assembles the CLI command tree.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voicewire/voicewire-go/cmd/benchmark"
	"github.com/voicewire/voicewire-go/cmd/devices"
	"github.com/voicewire/voicewire-go/cmd/realtime"
	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/logging"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voicewire",
		Short: "Voicewire realtime speech pipeline",
		Long:  "Capture microphone audio, detect a wake word, transcribe speech and publish the results.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		realtime.Command(settings),
		devices.Command(),
		benchmark.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return nil
	}

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		logging.Error("error binding flags", "error", err)
	}
}
