// Package realtime provides the subcommand that runs the full pipeline.
package realtime

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/realtime"
)

// Command creates the realtime capture and transcription command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the realtime speech pipeline",
		Long:  "Capture audio from the configured device and run wake-word detection, transcription and publishing until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return realtime.Run(context.Background(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		return cmd
	}
	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Audio.Source, "source", viper.GetString("audio.source"), "Audio capture source, matched by case-insensitive substring")
	cmd.Flags().StringVar(&settings.Audio.Export.Path, "clippath", viper.GetString("audio.export.path"), "Path to save utterance clips")
	cmd.Flags().BoolVar(&settings.Audio.Export.Enabled, "clipexport", viper.GetBool("audio.export.enabled"), "Export utterance audio as WAV files")
	cmd.Flags().Float64Var(&settings.WakeWord.Sensitivity, "sensitivity", viper.GetFloat64("wakeword.sensitivity"), "Wake-word detection sensitivity (0-1)")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "webserver", viper.GetBool("webserver.enabled"), "Enable the HTTP status and metrics server")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP server port")
	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish transcripts to the configured MQTT broker")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
