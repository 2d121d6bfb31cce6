package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "reauth"
	defaultConfigFile    = "config.yaml"
	defaultTokenFile     = "tokens.json"

	ConfigEnvVar = "REAUTH_CONFIG"
)

func DefaultConfigPath() string {
	if env := os.Getenv(ConfigEnvVar); env != "" {
		return env
	}
	return filepath.Join(configDir(), defaultConfigFile)
}

func DefaultTokenPath() string {
	return filepath.Join(configDir(), defaultTokenFile)
}

func configDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+defaultConfigDirName)
}
