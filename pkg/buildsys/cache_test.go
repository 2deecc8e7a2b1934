package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star":     rootScript,
		"app/build.star": `task(short = "assemble", cmds = ["echo hi > out.txt"])`,
	})
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "eval.cache")
	require.NoError(t, WriteCache(file, "abc", project))

	fingerprint, cached, err := ReadCache(file)
	require.NoError(t, err)
	assert.Equal(t, "abc", fingerprint)
	assert.Equal(t, project.BuildDir, cached.BuildDir)
	assert.Equal(t, project.EvaluationOrder, cached.EvaluationOrder)
	assert.Equal(t, project.Classpath, cached.Classpath)
	require.Contains(t, cached.Tasks, ":app:assemble")
	assert.Equal(t, project.Tasks[":app:assemble"].Cmds, cached.Tasks[":app:assemble"].Cmds)
	assert.Equal(t, []string{project.BuildDir}, cached.Tasks["clean"].Paths)
}

func TestLoadReusesCache(t *testing.T) {
	root := writeProject(t, map[string]string{
		"build.star": `task(short = "a", desc = "first", cmds = ["echo a"])`,
	})
	cacheFile := filepath.Join(root, ".buildconf", "eval.cache")
	ctx := context.Background()

	project, err := Load(ctx, root, "build.star", nil, cacheFile)
	require.NoError(t, err)
	assert.Equal(t, "first", project.Tasks["a"].Desc)
	require.FileExists(t, cacheFile)

	stored, _, err := ReadCache(cacheFile)
	require.NoError(t, err)

	project, err = Load(ctx, root, "build.star", nil, cacheFile)
	require.NoError(t, err)
	assert.Equal(t, "first", project.Tasks["a"].Desc)

	current, err := Fingerprint(project, nil)
	require.NoError(t, err)
	assert.Equal(t, stored, current)

	require.NoError(t, os.WriteFile(filepath.Join(root, "build.star"), []byte(`task(short = "a", desc = "second")`), 0o644))
	project, err = Load(ctx, root, "build.star", nil, cacheFile)
	require.NoError(t, err)
	assert.Equal(t, "second", project.Tasks["a"].Desc)
}

func TestFingerprintTracksOptionsAndEnv(t *testing.T) {
	t.Setenv("BUILDCONF_TEST_FLAVOR", "debug")

	project, err := evaluate(t, map[string]string{
		"build.star": `flavor = getenv("BUILDCONF_TEST_FLAVOR")`,
	})
	require.NoError(t, err)

	base, err := Fingerprint(project, nil)
	require.NoError(t, err)

	withOption, err := Fingerprint(project, map[string]string{"flavor": "release"})
	require.NoError(t, err)
	assert.NotEqual(t, base, withOption)

	t.Setenv("BUILDCONF_TEST_FLAVOR", "release")
	withEnv, err := Fingerprint(project, nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, withEnv)
}

func TestLoadSkipsCacheForUncacheableScripts(t *testing.T) {
	root := writeProject(t, map[string]string{
		"build.star": `version = execute("echo 1")`,
	})
	cacheFile := filepath.Join(root, ".buildconf", "eval.cache")

	project, err := Load(context.Background(), root, "build.star", nil, cacheFile)
	require.NoError(t, err)
	assert.True(t, project.Uncacheable)
	assert.NoFileExists(t, cacheFile)
}
