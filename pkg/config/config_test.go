package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "build.star", cfg.Script)
	assert.Equal(t, ".buildconf", cfg.CacheDir)
	assert.Equal(t, "buildscript.lock", cfg.Lockfile)
	assert.Equal(t, "index.db", cfg.Index)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.Equal(t, 30*time.Minute, cfg.HTTP.Timeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BUILDCONF_SCRIPT", "project.star")
	t.Setenv("BUILDCONF_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "project.star", cfg.Script)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Script: "build.star", CacheDir: ".buildconf", Index: "index.db"}
		cfg.Log.Level = "info"
		cfg.HTTP.Timeout = time.Minute
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Script = "sub/build.star"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.HTTP.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.CacheDir = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Index = "../index.db"
	assert.Error(t, cfg.Validate())
}

func TestLoadTomlFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "buildconf.toml")
	require.NoError(t, os.WriteFile(file, []byte("script = \"project.star\"\n\n[log]\nlevel = \"warn\"\n"), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "project.star", cfg.Script)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel())
}

func TestResolvePaths(t *testing.T) {
	cfg := &Config{CacheDir: ".buildconf", Lockfile: "buildscript.lock"}
	root := filepath.FromSlash("/home/u/project")

	assert.Equal(t, filepath.Join(root, ".buildconf"), cfg.ResolveCacheDir(root))
	assert.Equal(t, filepath.Join(root, "buildscript.lock"), cfg.ResolveLockfile(root))

	abs := filepath.Join(t.TempDir(), "cache")
	cfg.CacheDir = abs
	assert.Equal(t, abs, cfg.ResolveCacheDir(root))
}
