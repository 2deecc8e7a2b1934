package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRemovesTree(t *testing.T) {
	base := filepath.Join(t.TempDir(), "build")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "app", "intermediates"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "app", "out.apk"), []byte("apk"), 0o644))

	require.NoError(t, Clean(context.Background(), base))
	assert.NoDirExists(t, base)
}

func TestCleanTwiceEqualsOnce(t *testing.T) {
	parent := t.TempDir()
	base := filepath.Join(parent, "build")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "keep.txt"), []byte("keep"), 0o644))

	require.NoError(t, Clean(context.Background(), base))
	require.NoError(t, Clean(context.Background(), base))

	assert.NoDirExists(t, base)
	assert.FileExists(t, filepath.Join(parent, "keep.txt"))
}

func TestCleanMissingDirIsNoop(t *testing.T) {
	parent := t.TempDir()
	before, err := os.ReadDir(parent)
	require.NoError(t, err)

	require.NoError(t, Clean(context.Background(), filepath.Join(parent, "never-built")))

	after, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEnsureBuildDirs(t *testing.T) {
	root := t.TempDir()
	project := &Project{
		BuildDir: filepath.Join(root, "build"),
		Subprojects: []*Subproject{
			{Path: ":app", BuildDir: filepath.Join(root, "build", "app")},
		},
	}

	require.NoError(t, EnsureBuildDirs(context.Background(), project))
	assert.DirExists(t, filepath.Join(root, "build", "app"))

	require.NoError(t, Clean(context.Background(), project.BuildDir))
	assert.NoDirExists(t, project.BuildDir)
}

func TestNeedsBuildDirs(t *testing.T) {
	project := &Project{Tasks: TaskList{
		"clean":    {Short: "clean", Action: ActionClean},
		"assemble": {Short: "assemble"},
	}}

	assert.False(t, project.NeedsBuildDirs([]string{"clean"}))
	assert.False(t, project.NeedsBuildDirs([]string{":clean"}))
	assert.True(t, project.NeedsBuildDirs([]string{"clean", "assemble"}))
	assert.True(t, project.NeedsBuildDirs([]string{"unknown"}))
	assert.False(t, project.NeedsBuildDirs(nil))
}
