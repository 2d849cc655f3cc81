// defaults.go: default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "VoiceWire")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/voicewire.log")

	viper.SetDefault("audio.source", "sysdefault")
	viper.SetDefault("audio.samplerate", 16000)
	viper.SetDefault("audio.channels", 1)
	viper.SetDefault("audio.framems", 20)
	viper.SetDefault("audio.ringbufferms", 4000)
	viper.SetDefault("audio.export.enabled", false)
	viper.SetDefault("audio.export.path", "clips/")

	viper.SetDefault("wakeword.modelpath", "models/wakeword.onnx")
	viper.SetDefault("wakeword.sensitivity", 0.5)
	viper.SetDefault("wakeword.cooldownsec", 2)

	viper.SetDefault("stt.modelpath", "models/stt.onnx")
	viper.SetDefault("stt.language", "en")

	viper.SetDefault("language.enabled", true)

	viper.SetDefault("pipeline.queuesize", 16)
	viper.SetDefault("pipeline.outputqueuesize", 64)
	viper.SetDefault("pipeline.tickms", 1)
	viper.SetDefault("pipeline.shutdowngracesec", 5)
	viper.SetDefault("pipeline.errorrecoveryticks", 100)
	viper.SetDefault("pipeline.errorrecoverylimit", 5)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "voicewire/transcripts")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "voicewire.db")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
}
