package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir returns the configuration directory. MOUSEWATCH_CONFIG_DIR
// overrides the platform location.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/mousewatch/
//   - Linux:   $XDG_CONFIG_HOME/mousewatch/ or ~/.config/mousewatch/
//   - Windows: %APPDATA%\mousewatch\
func ConfigDir() string {
	if dir := os.Getenv("MOUSEWATCH_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "mousewatch")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "mousewatch")
		}
		return filepath.Join(home, "AppData", "Roaming", "mousewatch")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "mousewatch")
		}
		return filepath.Join(home, ".config", "mousewatch")
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats returns the accepted file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile looks for config.<ext> in the working directory and then in
// ConfigDir. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
