// validate.go: cross-field validation of loaded settings
package conf

import (
	"fmt"
)

// ValidateSettings checks the loaded settings for values the core packages
// assume to be sane. It returns the first problem found.
func ValidateSettings(s *Settings) error {
	if err := validateAudioSettings(&s.Audio); err != nil {
		return err
	}
	if err := validateWakeWordSettings(&s.WakeWord); err != nil {
		return err
	}
	if err := validatePipelineSettings(&s.Pipeline); err != nil {
		return err
	}
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when MQTT is enabled")
	}
	if s.Output.SQLite.Enabled && s.Output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must be set when sqlite output is enabled")
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("audio.samplerate must be positive, got %d", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", a.Channels)
	}
	if a.FrameMs <= 0 {
		return fmt.Errorf("audio.framems must be positive, got %d", a.FrameMs)
	}
	if a.RingBufferMs <= 0 {
		return fmt.Errorf("audio.ringbufferms must be positive, got %d", a.RingBufferMs)
	}
	if a.RingBufferMs%a.FrameMs != 0 {
		return fmt.Errorf("audio.ringbufferms (%d) must be a multiple of audio.framems (%d)",
			a.RingBufferMs, a.FrameMs)
	}
	if (a.SampleRate*a.FrameMs)%1000 != 0 {
		return fmt.Errorf("audio.framems (%d) does not yield a whole number of samples at %d Hz",
			a.FrameMs, a.SampleRate)
	}
	return nil
}

func validateWakeWordSettings(w *WakeWordSettings) error {
	if w.Sensitivity < 0 || w.Sensitivity > 1 {
		return fmt.Errorf("wakeword.sensitivity must be within 0.0-1.0, got %f", w.Sensitivity)
	}
	if w.CooldownSec < 0 {
		return fmt.Errorf("wakeword.cooldownsec must not be negative, got %d", w.CooldownSec)
	}
	return nil
}

func validatePipelineSettings(p *PipelineSettings) error {
	if p.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queuesize must be positive, got %d", p.QueueSize)
	}
	if p.OutputQueueSize <= 0 {
		return fmt.Errorf("pipeline.outputqueuesize must be positive, got %d", p.OutputQueueSize)
	}
	if p.TickMs <= 0 {
		return fmt.Errorf("pipeline.tickms must be positive, got %d", p.TickMs)
	}
	if p.ShutdownGraceSec <= 0 {
		return fmt.Errorf("pipeline.shutdowngracesec must be positive, got %d", p.ShutdownGraceSec)
	}
	if p.ErrorRecoveryTicks <= 0 {
		return fmt.Errorf("pipeline.errorrecoveryticks must be positive, got %d", p.ErrorRecoveryTicks)
	}
	if p.ErrorRecoveryLimit <= 0 {
		return fmt.Errorf("pipeline.errorrecoverylimit must be positive, got %d", p.ErrorRecoveryLimit)
	}
	return nil
}
