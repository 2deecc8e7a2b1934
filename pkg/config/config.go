package config

import (
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config describes all configuration options
type Config struct {
	Script   string `default:"build.star" usage:"Name of the build script in the project root and in each subproject"`
	CacheDir string `default:".buildconf" usage:"Directory for downloaded artifacts, the artifact index and the evaluation cache (relative to the project root)"`
	Lockfile string `default:"buildscript.lock" usage:"Checksum lockfile for classpath dependencies (relative to the project root)"`
	Index    string `default:"index.db" usage:"Name of the resolved artifact index inside the cache directory"`
	Log      struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	HTTP struct {
		Timeout   time.Duration `default:"30m" usage:"Timeout for a single artifact download"`
		UserAgent string        `default:"buildconf" usage:"User-Agent header sent to remote repositories"`
	}
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{"buildconf.toml"}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "BUILDCONF",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration from the default sources and validates it
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if cfg.Script == "" || filepath.Base(cfg.Script) != cfg.Script {
		return eris.Errorf(`Invalid value for script: %q (must be a plain file name)`, cfg.Script)
	}

	if cfg.CacheDir == "" {
		return eris.New(`Invalid value for cachedir: must not be empty`)
	}

	if cfg.Index == "" || filepath.Base(cfg.Index) != cfg.Index {
		return eris.Errorf(`Invalid value for index: %q (must be a plain file name)`, cfg.Index)
	}

	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.HTTP.Timeout <= 0 {
		return eris.Errorf(`Invalid value for http.timeout: %s (must be positive)`, cfg.HTTP.Timeout)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// ResolveCacheDir returns the absolute cache directory for the given project root
func (cfg *Config) ResolveCacheDir(projectRoot string) string {
	if filepath.IsAbs(cfg.CacheDir) {
		return cfg.CacheDir
	}
	return filepath.Join(projectRoot, cfg.CacheDir)
}

// ResolveLockfile returns the absolute lockfile path for the given project root
func (cfg *Config) ResolveLockfile(projectRoot string) string {
	if filepath.IsAbs(cfg.Lockfile) {
		return cfg.Lockfile
	}
	return filepath.Join(projectRoot, cfg.Lockfile)
}
