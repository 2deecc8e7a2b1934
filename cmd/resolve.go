package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/buildconf/pkg"
	"github.com/ngld/buildconf/pkg/buildsys"
	bcmd "github.com/ngld/buildconf/pkg/buildsys/cmd"
	"github.com/ngld/buildconf/pkg/config"
	"github.com/ngld/buildconf/pkg/resolver"
)

// newResolver builds a resolver for the build script classpath of the given project. The returned function
// closes the artifact index.
func newResolver(cfg *config.Config, project *buildsys.Project, cacheDir string, lock *resolver.Lockfile, update bool) (*resolver.Resolver, func(), error) {
	err := os.MkdirAll(cacheDir, 0o770)
	if err != nil {
		return nil, nil, buildsys.FilesystemError{Op: "create", Path: cacheDir, Err: err}
	}

	index, err := resolver.OpenIndex(filepath.Join(cacheDir, cfg.Index))
	if err != nil {
		return nil, nil, err
	}

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	repos := make([]resolver.Repository, len(project.BuildscriptRepositories))
	for idx, spec := range project.BuildscriptRepositories {
		repos[idx] = spec.Repository(client, cfg.HTTP.UserAgent)
	}

	r := &resolver.Resolver{
		Repositories: repos,
		CacheDir:     filepath.Join(cacheDir, "artifacts"),
		Index:        index,
		Lock:         lock,
		Update:       update,
		Quiet:        cfg.Log.JSON,
	}

	return r, func() { index.Close() }, nil
}

func resolveClasspath(ctx context.Context, cfg *config.Config, project *buildsys.Project, cacheDir, lockPath string, update bool) ([]resolver.Artifact, error) {
	lock, err := resolver.ReadLockfile(lockPath)
	if err != nil {
		return nil, err
	}

	r, closeIndex, err := newResolver(cfg, project, cacheDir, lock, update)
	if err != nil {
		return nil, err
	}
	defer closeIndex()

	artifacts, err := r.ResolveAll(ctx, project.Classpath)
	if err != nil {
		return nil, err
	}

	err = lock.Write(lockPath)
	if err != nil {
		return nil, err
	}

	return artifacts, nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [option=value...]",
	Short: "Downloads the build script classpath",
	Long: `Resolves every classpath() dependency declared in buildscript() against the buildscript repositories
in declaration order. Checksums are pinned in the lockfile on first download.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		session, err := bcmd.NewSession(cmd)
		if err != nil {
			return err
		}

		_, options := bcmd.SplitArgs(args)
		pkg.PrintTask("Evaluating build scripts")
		project, err := session.LoadProject(options)
		if err != nil {
			return err
		}

		if len(project.Classpath) == 0 {
			pkg.PrintSubtask("No classpath dependencies declared")
			return nil
		}

		if len(project.BuildscriptRepositories) == 0 {
			return eris.New("classpath dependencies were declared but buildscript() lists no repositories")
		}

		pkg.PrintTask("Resolving classpath")
		artifacts, err := resolveClasspath(session.Ctx, session.Config, project, session.CacheDir(),
			session.Config.ResolveLockfile(session.Root), update)
		if err != nil {
			pkg.PrintError(err.Error())
			return err
		}

		for _, artifact := range artifacts {
			rel, err := filepath.Rel(session.Root, artifact.File)
			if err != nil {
				rel = artifact.File
			}
			pkg.PrintSubtask(fmt.Sprintf("%s (%s) -> %s", artifact.Coordinate, artifact.Repository, rel))
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	resolveCmd.Flags().Bool("update", false, "accept changed checksums and rewrite the lockfile")

	rootCmd.AddCommand(resolveCmd)
}
