package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "/custom/config.yaml")
		assert.Equal(t, "/custom/config.yaml", DefaultConfigPath())
	})

	t.Run("user config dir", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "")
		path := DefaultConfigPath()
		assert.True(t, strings.HasSuffix(path, filepath.Join("reauth", "config.yaml")) ||
			strings.HasSuffix(path, filepath.Join(".reauth", "config.yaml")), path)
	})
}

func TestDefaultTokenPath(t *testing.T) {
	path := DefaultTokenPath()
	assert.Equal(t, defaultTokenFile, filepath.Base(path))
	assert.Contains(t, path, defaultConfigDirName)
}
