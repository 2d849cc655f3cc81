// Package realtime wires the configured subsystems together and runs the
// pipeline until interrupted.
package realtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicewire/voicewire-go/internal/audio"
	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/datastore"
	"github.com/voicewire/voicewire-go/internal/diagnostics"
	"github.com/voicewire/voicewire-go/internal/errors"
	"github.com/voicewire/voicewire-go/internal/httpserver"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability"
	"github.com/voicewire/voicewire-go/internal/pipeline"
	"github.com/voicewire/voicewire-go/internal/publisher"
)

const httpShutdownTimeout = 5 * time.Second

// Run starts the full realtime service and blocks until the context is
// cancelled or a termination signal arrives.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logging.ForService("realtime")

	info := diagnostics.CaptureSystemInfo()
	log.Info("starting voicewire",
		"os", info.OS, "platform", info.Platform,
		"cpus", info.NumCPU, "mem_total_mb", info.MemTotalMB,
		"go", info.GoVersion)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("realtime").
			Category(errors.CategorySystem).
			Build()
	}

	var store datastore.Interface
	if settings.Output.SQLite.Enabled {
		store, err = datastore.New(settings)
		if err != nil {
			return err
		}
		if err := store.Open(); err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("closing datastore failed", "error", err)
			}
		}()
	}

	buffer, err := audio.NewAudioBuffer(
		settings.Audio.SampleRate, 1, settings.Audio.FrameMs, settings.Audio.RingBufferMs)
	if err != nil {
		return err
	}

	p := pipeline.NewAudioPipeline(settings, buffer, metrics.Pipeline)
	p.AttachCapture(audio.NewCapture(settings, buffer, metrics.Audio))

	var pub publisher.Client
	if settings.MQTT.Enabled {
		pub = publisher.NewClient(settings, metrics.MQTT)
		go func() {
			if err := pub.Connect(ctx); err != nil {
				log.Warn("initial MQTT connect failed, relying on auto reconnect",
					"error", err)
			}
		}()
		defer pub.Disconnect()
	}

	var httpSrv *httpserver.Server
	if settings.WebServer.Enabled {
		httpSrv = httpserver.New(settings, store, metrics)
		httpSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error("http shutdown failed", "error", err)
			}
		}()
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go consumeOutput(runCtx, settings, p, store, pub, log)

	// Blocks until cancellation or an unrecoverable pipeline failure.
	return p.Start(runCtx)
}

// consumeOutput drains completed records into the configured sinks: clip
// files, the datastore and the MQTT broker. Sink failures are logged and
// never feed back into the pipeline.
func consumeOutput(ctx context.Context, settings *conf.Settings, p *pipeline.AudioPipeline,
	store datastore.Interface, pub publisher.Client, log *slog.Logger) {
	for record := range p.OutputStream() {
		if settings.Audio.Export.Enabled && len(record.PCM) > 0 {
			path, err := audio.ExportClip(settings.Audio.Export.Path,
				settings.Audio.SampleRate, record.PCM)
			if err != nil {
				log.Error("clip export failed", "id", record.ID, "error", err)
			} else {
				record.ClipPath = path
			}
		}

		if store != nil {
			dbRecord := &datastore.TranscriptRecord{
				ID:               record.ID,
				Timestamp:        record.Timestamp,
				Transcript:       record.Transcript,
				Language:         record.Language,
				Sentiment:        record.Sentiment,
				Confidence:       record.Confidence,
				ProcessingTimeMs: record.ProcessingTimeMs,
				ClipPath:         record.ClipPath,
			}
			if err := store.Save(dbRecord); err != nil {
				log.Error("saving transcript failed", "id", record.ID, "error", err)
			}
		}

		if pub != nil && pub.IsConnected() {
			if err := pub.PublishRecord(ctx, record); err != nil {
				log.Error("publishing transcript failed", "id", record.ID, "error", err)
			}
		}
	}
}
