package config

import (
	"os"
	"path/filepath"
)

const (
	EnvConfigPath = "ALERTCTL_CONFIG"
	DotEnvFile    = ".env"

	defaultConfigDirName = "alertctl"
	defaultConfigFile    = "config.yaml"
)

func DefaultConfigPath() string {
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".alertctl", defaultConfigFile)
}
