// utils.go: OS specific configuration path helpers
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultConfigPaths returns a list of directories to search for the
// config file, in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		configPaths = []string{
			filepath.Join(appData, "voicewire"),
			".",
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "voicewire"),
			"/etc/voicewire",
			".",
		}
	}

	return configPaths, nil
}
