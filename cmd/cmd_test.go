package cmd

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/buildconf/pkg/buildsys"
	"github.com/ngld/buildconf/pkg/config"
	"github.com/ngld/buildconf/pkg/resolver"
)

func TestRemovePaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "nested"), 0o755))

	assert.Error(t, removePaths([]string{sub}, false, false))
	assert.DirExists(t, sub)

	require.NoError(t, removePaths([]string{file, sub}, true, false))
	assert.NoFileExists(t, file)
	assert.NoDirExists(t, sub)

	assert.Error(t, removePaths([]string{file}, false, false))
	assert.NoError(t, removePaths([]string{file}, false, true))
}

func TestMakeDirs(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	assert.Error(t, makeDirs([]string{nested}, false))
	require.NoError(t, makeDirs([]string{nested}, true))
	assert.DirExists(t, nested)
}

func TestMovePaths(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

	renamed := filepath.Join(dir, "b.txt")
	require.NoError(t, movePaths([]string{src}, renamed))
	assert.FileExists(t, renamed)

	target := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(target, 0o755))
	require.NoError(t, movePaths([]string{renamed}, target))
	assert.FileExists(t, filepath.Join(target, "b.txt"))

	other := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(other, []byte("c"), 0o644))
	assert.Error(t, movePaths([]string{other, filepath.Join(target, "b.txt")}, filepath.Join(dir, "missing")))
}

func TestPrintProjects(t *testing.T) {
	root := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "build.star"), []byte(`
buildscript(repositories = [google()], dependencies = [classpath("com.android.tools.build:gradle:7.0.2")])
include(":lib", ":app")
set_build_dir("../build")
subprojects(evaluation_depends_on = ":app")
`), 0o644))

	project, err := buildsys.Evaluate(context.Background(), root, "build.star", nil)
	require.NoError(t, err)

	out := bytes.Buffer{}
	printProjects(&out, project)

	text := out.String()
	assert.Contains(t, text, "Build dir: ../build")
	assert.Contains(t, text, "com.android.tools.build:gradle:7.0.2")
	assert.Contains(t, text, "build dir: ../build/app")
	assert.Less(t, bytes.Index(out.Bytes(), []byte(" * :app")), bytes.Index(out.Bytes(), []byte(" * :lib")))
	assert.Contains(t, text, "after:     :app")
}

func TestResolveClasspath(t *testing.T) {
	content := "gradle plugin"
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/com/android/tools/build/gradle/7.0.2/gradle-7.0.2.jar" {
			http.NotFound(rw, r)
			return
		}

		hits++
		if r.Method == http.MethodGet {
			rw.Write([]byte(content))
		}
	}))
	defer server.Close()

	cfg := &config.Config{Index: "index.db"}
	cfg.HTTP.Timeout = time.Minute
	cfg.Log.JSON = true

	coordinate, err := resolver.ParseCoordinate("com.android.tools.build:gradle:7.0.2")
	require.NoError(t, err)

	project := &buildsys.Project{
		BuildscriptRepositories: []buildsys.RepositorySpec{{Name: "test", URL: server.URL}},
		Classpath:               []resolver.Coordinate{coordinate},
	}

	dir := t.TempDir()
	cacheDir := filepath.Join(dir, ".buildconf")
	lockPath := filepath.Join(dir, "buildscript.lock")

	artifacts, err := resolveClasspath(context.Background(), cfg, project, cacheDir, lockPath, false)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), artifacts[0].Sha256)
	assert.Equal(t, "test", artifacts[0].Repository)

	lock, err := resolver.ReadLockfile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), lock.Artifacts[coordinate.String()].Sha256)

	// the index remembers the artifact
	before := hits
	artifacts, err = resolveClasspath(context.Background(), cfg, project, cacheDir, lockPath, false)
	require.NoError(t, err)
	assert.True(t, artifacts[0].Cached)
	assert.Equal(t, before, hits)
}

func TestTaskCommandPreparesBuildDirs(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "build.star"), []byte(`
include(":app")
set_build_dir("../build")
subprojects()
register_clean()
task(short = "assemble", cmds = ["echo done"])
`), 0o644))

	rootCmd.SetArgs([]string{"--project", root, "--log-json", "task", "clean"})
	require.NoError(t, rootCmd.Execute())
	assert.NoDirExists(t, filepath.Join(parent, "build"))

	rootCmd.SetArgs([]string{"--project", root, "--log-json", "task", "assemble"})
	require.NoError(t, rootCmd.Execute())
	assert.DirExists(t, filepath.Join(parent, "build", "app"))

	rootCmd.SetArgs([]string{"--project", root, "--log-json", "task", "clean"})
	require.NoError(t, rootCmd.Execute())
	assert.NoDirExists(t, filepath.Join(parent, "build"))
}
