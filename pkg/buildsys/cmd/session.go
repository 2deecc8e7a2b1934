package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/buildconf/pkg"
	"github.com/ngld/buildconf/pkg/buildsys"
	"github.com/ngld/buildconf/pkg/config"
)

// Session bundles everything a command needs to work on the current project
type Session struct {
	Ctx    context.Context
	Config *config.Config
	Logger zerolog.Logger
	Root   string
}

func flagString(cmd *cobra.Command, name string) string {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}

func flagBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	return err == nil && value
}

// NewSession loads the configuration, sets up logging and locates the project root. It reads the
// persistent --config, --project, --log-json and --verbose flags if the command has them.
func NewSession(cmd *cobra.Command) (*Session, error) {
	files := []string{}
	if file := flagString(cmd, "config"); file != "" {
		files = append(files, file)
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	if flagBool(cmd, "log-json") {
		cfg.Log.JSON = true
	}

	level := cfg.LogLevel()
	if flagBool(cmd, "verbose") {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter())
	}
	logger = logger.Level(level)

	start := flagString(cmd, "project")
	if start == "" {
		start, err = os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "failed to retrieve the current working directory")
		}
	}

	root, err := pkg.GetProjectRoot(start, cfg.Script)
	if err != nil {
		return nil, err
	}

	return &Session{
		Ctx:    buildsys.WithLogger(context.Background(), &logger),
		Config: cfg,
		Logger: logger,
		Root:   root,
	}, nil
}

// CacheDir returns the absolute cache directory of the current project
func (s *Session) CacheDir() string {
	return s.Config.ResolveCacheDir(s.Root)
}

// LoadProject evaluates the build scripts of the current project, reusing a previous evaluation if possible
func (s *Session) LoadProject(options map[string]string) (*buildsys.Project, error) {
	cacheFile := filepath.Join(s.CacheDir(), "evaluation.cache")
	return buildsys.Load(s.Ctx, s.Root, s.Config.Script, options, cacheFile)
}
