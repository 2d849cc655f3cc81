// config.go: settings struct and functions to load and save the settings.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AudioSettings contains settings for audio capture.
type AudioSettings struct {
	Source       string // capture device to use, matched case-insensitively by substring
	SampleRate   int    // capture sample rate in Hz
	Channels     int    // number of capture channels
	FrameMs      int    // duration of one frame in milliseconds
	RingBufferMs int    // total ring buffer duration in milliseconds
	Export       ClipExportSettings
}

// ClipExportSettings controls export of utterance audio clips.
type ClipExportSettings struct {
	Enabled bool   // export utterance clips as WAV files
	Path    string // clip export directory
}

// WakeWordSettings contains settings for the wake-word stage.
type WakeWordSettings struct {
	ModelPath   string  // path to the wake-word model
	Sensitivity float64 // detection sensitivity 0.0-1.0
	CooldownSec int     // seconds to suppress repeated detections
}

// STTSettings contains settings for the speech-to-text stage.
type STTSettings struct {
	ModelPath string // path to the STT model
	Language  string // expected spoken language code
}

// LanguageSettings contains settings for the language-analysis stage.
type LanguageSettings struct {
	Enabled bool // run language/sentiment analysis on transcripts
}

// PipelineSettings contains tuning knobs for the pipeline state machine.
type PipelineSettings struct {
	QueueSize          int // capacity of inter-stage queues
	OutputQueueSize    int // capacity of the output record queue
	TickMs             int // state machine tick interval in milliseconds
	ShutdownGraceSec   int // seconds to wait for stage goroutines on shutdown
	ErrorRecoveryTicks int // consecutive Error ticks before attempting recovery
	ErrorRecoveryLimit int // recoveries per hour before escalating to shutdown
}

// MQTTSettings contains settings for transcript publishing over MQTT.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // broker URL, e.g. tcp://localhost:1883
	Topic    string
	Username string
	Password string
	Retain   bool
}

// SQLiteSettings contains settings for the sqlite transcript store.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the sqlite database file
}

// OutputSettings groups the transcript sinks.
type OutputSettings struct {
	SQLite SQLiteSettings
}

// WebServerSettings contains settings for the HTTP surface.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// LogConfig contains settings for log rotation.
type LogConfig struct {
	Enabled bool
	Path    string
}

// MainSettings contains application identity settings.
type MainSettings struct {
	Name string // client name used for MQTT and logs
	Log  LogConfig
}

// Settings is the top level configuration struct. The core packages only
// read from it; validation happens once at load time.
type Settings struct {
	Debug bool

	Main      MainSettings
	Audio     AudioSettings
	WakeWord  WakeWordSettings
	STT       STTSettings
	Language  LanguageSettings
	Pipeline  PipelineSettings
	MQTT      MQTTSettings
	Output    OutputSettings
	WebServer WebServerSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a validated Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets up config paths, defaults and reads the config file,
// creating a default one when none exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the default configuration to the first config
// path and re-reads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	if err := SaveYAMLConfig(configPath, settings); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// Setting returns the loaded settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	if _, err := Load(); err != nil {
		return nil
	}
	return settingsInstance
}

// SaveYAMLConfig marshals the settings to YAML and writes them to configPath.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
