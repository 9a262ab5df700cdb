package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, defaultConfigPath, resolveConfigPath(options{configPath: defaultConfigPath}),
		"production always loads the given path")
	assert.Equal(t, "", resolveConfigPath(options{dev: true, configPath: defaultConfigPath}),
		"dev without a config file runs on defaults")
	assert.Equal(t, "custom.yaml", resolveConfigPath(options{dev: true, configPath: "custom.yaml"}))

	require.NoError(t, os.MkdirAll(filepath.Dir(defaultConfigPath), 0o755))
	require.NoError(t, os.WriteFile(defaultConfigPath, []byte("cache_time: 1000\n"), 0o600))
	assert.Equal(t, defaultConfigPath, resolveConfigPath(options{dev: true, configPath: defaultConfigPath}))
}
