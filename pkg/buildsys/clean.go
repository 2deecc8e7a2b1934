package buildsys

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
)

// Clean recursively deletes the given output directories. Directories that don't exist are skipped so
// running Clean twice has the same effect as running it once.
func Clean(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		_, err := os.Lstat(path)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				log(ctx).Info().Str("path", path).Msg("nothing to clean")
				continue
			}
			return FilesystemError{Op: "inspect", Path: path, Err: err}
		}

		log(ctx).Info().Str("path", path).Msg("deleting")
		err = os.RemoveAll(path)
		if err != nil {
			return FilesystemError{Op: "delete", Path: path, Err: err}
		}
	}

	return nil
}

// EnsureBuildDirs creates the root output directory and the output directories of all subprojects
func EnsureBuildDirs(ctx context.Context, project *Project) error {
	dirs := []string{project.BuildDir}
	for _, sub := range project.Subprojects {
		dirs = append(dirs, sub.BuildDir)
	}

	for _, dir := range dirs {
		err := os.MkdirAll(dir, 0o770)
		if err != nil {
			return FilesystemError{Op: "create", Path: dir, Err: err}
		}
		log(ctx).Debug().Str("path", dir).Msg("created")
	}

	return nil
}

// NeedsBuildDirs reports whether any of the named tasks produces output. Only clean tasks don't.
func (p *Project) NeedsBuildDirs(taskNames []string) bool {
	for _, name := range taskNames {
		task, ok := p.Tasks[qualifyTaskName("", name)]
		if !ok || task.Action != ActionClean {
			return true
		}
	}
	return false
}
