package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestRunSubprojectTask(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star":     rootScript,
		"app/build.star": `task(short = "assemble", cmds = ["echo hi > out.txt"])`,
	})
	require.NoError(t, err)

	require.NoError(t, RunTask(context.Background(), project, ":app:assemble", false, false))
	assert.Equal(t, "hi\n", readFile(t, filepath.Join(project.Root, "app", "out.txt")))
}

func TestRunTaskDependenciesFirst(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `
c = task(cmds = ["echo c >> log.txt"])
task(short = "b", cmds = ["echo b >> log.txt"])
task(short = "a", deps = ["b"], cmds = [c, "echo a >> log.txt"])
`,
	})
	require.NoError(t, err)

	require.NoError(t, RunTask(context.Background(), project, "a", false, false))
	assert.Equal(t, "b\nc\na\n", readFile(t, filepath.Join(project.Root, "log.txt")))
}

func TestRunTaskDryRun(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `task(short = "a", cmds = ["echo a > a.txt"])`,
	})
	require.NoError(t, err)

	require.NoError(t, RunTask(context.Background(), project, "a", true, false))
	assert.NoFileExists(t, filepath.Join(project.Root, "a.txt"))
}

func TestRunTaskSkipIfExists(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `task(short = "a", skip_if_exists = ["marker"], cmds = ["echo a > a.txt"])`,
		"marker":     "",
	})
	require.NoError(t, err)

	require.NoError(t, RunTask(context.Background(), project, "a", false, false))
	assert.NoFileExists(t, filepath.Join(project.Root, "a.txt"))

	require.NoError(t, RunTask(context.Background(), project, "a", false, true))
	assert.FileExists(t, filepath.Join(project.Root, "a.txt"))
}

func TestRunTaskRecursion(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `task(short = "loop", deps = ["loop"])`,
	})
	require.NoError(t, err)

	err = RunTask(context.Background(), project, "loop", false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursively")
}

func TestRunUnknownTask(t *testing.T) {
	project, err := evaluate(t, map[string]string{"build.star": ""})
	require.NoError(t, err)

	assert.Error(t, RunTask(context.Background(), project, "missing", false, false))
}

func TestRunCleanTask(t *testing.T) {
	project, err := evaluate(t, map[string]string{"build.star": rootScript})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, EnsureBuildDirs(ctx, project))
	require.DirExists(t, project.Subproject(":app").BuildDir)

	require.NoError(t, RunTask(ctx, project, "clean", true, false))
	assert.DirExists(t, project.BuildDir)

	require.NoError(t, RunTask(ctx, project, ":clean", false, false))
	assert.NoDirExists(t, project.BuildDir)
	assert.DirExists(t, project.Root)

	// the second run finds nothing to delete
	require.NoError(t, RunTask(ctx, project, "clean", false, false))
}
