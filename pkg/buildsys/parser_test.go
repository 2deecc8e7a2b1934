package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/buildconf/pkg/resolver"
)

const rootScript = `
buildscript(
    repositories = [google(), maven_central()],
    dependencies = [
        classpath("com.android.tools.build:gradle:7.0.2"),
        classpath("org.jetbrains.kotlin:kotlin-gradle-plugin:1.5.31"),
    ],
)

allprojects(repositories = [google(), maven_central()])

include(":lib", ":app")

build_dir = set_build_dir("../build")

subprojects(evaluation_depends_on = ":app")

register_clean()
`

// writeProject creates a project below a fresh temporary directory. files maps slash separated paths
// relative to the project root to their content.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "project")
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func evaluate(t *testing.T, files map[string]string) (*Project, error) {
	t.Helper()
	return Evaluate(context.Background(), writeProject(t, files), "build.star", nil)
}

func TestEvaluateAndroidLayout(t *testing.T) {
	root := writeProject(t, map[string]string{
		"build.star": rootScript,
		"app/build.star": `
ext(version = "1.2.0")
task(short = "assemble", desc = "Builds the app", cmds = ["echo hi > out.txt"])
`,
		"lib/build.star": `
ext(app_version = property(":app", "version"))
info("building against app " + project().path)
`,
	})

	project, err := Evaluate(context.Background(), root, "build.star", nil)
	require.NoError(t, err)

	parent := filepath.Dir(root)
	assert.Equal(t, filepath.Join(parent, "build"), project.BuildDir)
	assert.True(t, project.Relocated)

	require.Len(t, project.Subprojects, 2)
	lib := project.Subproject(":lib")
	app := project.Subproject(":app")
	require.NotNil(t, lib)
	require.NotNil(t, app)
	assert.Equal(t, filepath.Join(parent, "build", "app"), app.BuildDir)
	assert.Equal(t, filepath.Join(parent, "build", "lib"), lib.BuildDir)
	assert.Equal(t, filepath.Join(root, "app"), app.Dir)

	assert.Equal(t, []string{":app"}, lib.EvaluationDeps)
	assert.Empty(t, app.EvaluationDeps)
	assert.Equal(t, []string{":app", ":lib"}, project.EvaluationOrder)
	assert.Equal(t, "1.2.0", lib.Properties["app_version"])

	require.Len(t, project.BuildscriptRepositories, 2)
	assert.Equal(t, resolver.GoogleURL, project.BuildscriptRepositories[0].URL)
	assert.Equal(t, resolver.MavenCentralURL, project.BuildscriptRepositories[1].URL)
	assert.Equal(t, project.BuildscriptRepositories, project.Repositories)

	require.Len(t, project.Classpath, 2)
	assert.Equal(t, "com.android.tools.build:gradle:7.0.2", project.Classpath[0].String())
	assert.Equal(t, "org.jetbrains.kotlin:kotlin-gradle-plugin:1.5.31", project.Classpath[1].String())

	clean, ok := project.Tasks["clean"]
	require.True(t, ok)
	assert.Equal(t, ActionClean, clean.Action)
	assert.Equal(t, []string{project.BuildDir}, clean.Paths)

	assemble, ok := project.Tasks[":app:assemble"]
	require.True(t, ok)
	assert.Equal(t, ":app", assemble.Project)
	assert.Equal(t, app.Dir, assemble.Base)

	assert.Contains(t, project.Inputs, filepath.Join(root, "build.star"))
	assert.Contains(t, project.Inputs, filepath.Join(root, "app", "build.star"))
	assert.False(t, project.Uncacheable)
}

func TestEvaluateWithoutRelocation(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `
include(":app")
subprojects(relocate_build_dirs = False)
`,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(project.Root, "build"), project.BuildDir)
	assert.Equal(t, filepath.Join(project.Root, "app", "build"), project.Subproject(":app").BuildDir)
	assert.Equal(t, []string{":app"}, project.EvaluationOrder)
}

func TestEvaluateNestedProjectPath(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `
include("libs:core")
set_build_dir("//out")
subprojects()
`,
	})
	require.NoError(t, err)

	core := project.Subproject(":libs:core")
	require.NotNil(t, core)
	assert.Equal(t, "core", core.Name)
	assert.Equal(t, filepath.Join(project.Root, "libs", "core"), core.Dir)
	assert.Equal(t, filepath.Join(project.Root, "out", "core"), core.BuildDir)
}

func TestEvaluateRejectsUndeclaredTarget(t *testing.T) {
	_, err := evaluate(t, map[string]string{
		"build.star": `
include(":lib")
subprojects(evaluation_depends_on = ":app")
`,
	})

	var undeclared UndeclaredProjectError
	require.ErrorAs(t, err, &undeclared)
	assert.Equal(t, ":app", undeclared.Target)
}

func TestEvaluateRejectsBuildDirOverProjectSources(t *testing.T) {
	root := writeProject(t, map[string]string{
		"build.star": `
include(":app")
set_build_dir("app")
subprojects()
register_clean()
`,
		"app/src/Main.kt": "fun main() {}",
	})

	_, err := Evaluate(context.Background(), root, "build.star", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources of project :app")
	assert.FileExists(t, filepath.Join(root, "app", "src", "Main.kt"))
}

func TestEvaluatePinnedMavenVersions(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `
buildscript(dependencies = [
    classpath("org.hibernate:hibernate-core:5.6.15.Final"),
    classpath("com.example:tool:1.2.3.4"),
    classpath("com.google.guava:guava:r09"),
])
`,
	})
	require.NoError(t, err)
	require.Len(t, project.Classpath, 3)
	assert.Equal(t, "5.6.15.Final", project.Classpath[0].Version)
	assert.Equal(t, "r09", project.Classpath[2].Version)
}

func TestEvaluateConflictingVersionsNamesNewer(t *testing.T) {
	_, err := evaluate(t, map[string]string{
		"build.star": `buildscript(dependencies = [classpath("com.example:tool:1.10.0"), classpath("com.example:tool:1.9.0")])`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keep only 1.10.0")
}

func TestEvaluateRejectsCycle(t *testing.T) {
	_, err := evaluate(t, map[string]string{
		"build.star": `
include(":a", ":b")
evaluation_depends_on(":a", ":b")
evaluation_depends_on(":b", ":a")
`,
	})

	var cycleErr CyclicEvaluationError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{":a", ":b", ":a"}, cycleErr.Cycle)
}

func TestEvaluatePropertyRequiresEvaluationDependency(t *testing.T) {
	_, err := evaluate(t, map[string]string{
		"build.star":     `include(":lib", ":app")`,
		"app/build.star": `ext(version = "1")`,
		"lib/build.star": `property(":app", "version")`,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `evaluation_depends_on(":lib", ":app")`)
}

func TestEvaluatePropertyDefault(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star":     `include(":app", ":lib")`,
		"lib/build.star": `ext(flavor = property(":app", "flavor", "release"))`,
	})
	require.NoError(t, err)
	assert.Equal(t, "release", project.Subproject(":lib").Properties["flavor"])
}

func TestEvaluateOrderingErrors(t *testing.T) {
	cases := map[string]string{
		"set_build_dir after subprojects": `
include(":app")
subprojects()
set_build_dir("../build")
`,
		"include after subprojects": `
subprojects()
include(":app")
`,
		"subprojects twice": `
subprojects()
subprojects()
`,
		"duplicate include":       `include(":app", "app")`,
		"clean registered twice":  "register_clean()\nregister_clean()",
		"reserved task name":      `task(short = "clean", cmds = ["echo"])`,
		"build dir contains root": `set_build_dir("..")`,
		"build dir is root":       `set_build_dir(".")`,
		"dynamic version":         `buildscript(dependencies = [classpath("com.example:tool:1.+")])`,
		"latest version":          `buildscript(dependencies = [classpath("com.example:tool:latest.release")])`,
		"conflicting versions": `
buildscript(dependencies = [classpath("com.example:tool:1.0"), classpath("com.example:tool:2.0")])
`,
		"shared build dir": `
include(":a:app", ":b:app")
subprojects()
`,
		"project build dir contains its sources": `
include(":x:app")
set_build_dir("x")
subprojects()
`,
		"build dir contains project sources": `
include(":app")
set_build_dir("app")
subprojects()
register_clean()
`,
		"build dir contains project sources without relocation": `
include(":app")
set_build_dir("app")
`,
		"unknown task dependency": `task(short = "a", deps = ["b"])`,
	}

	for name, script := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := evaluate(t, map[string]string{"build.star": script})
			assert.Error(t, err)
		})
	}
}

func TestEvaluateOptions(t *testing.T) {
	root := writeProject(t, map[string]string{
		"build.star": `
flavor = option("flavor", "debug", help = "Build flavor")
task(short = "show", env = {"FLAVOR": flavor}, cmds = ["echo $FLAVOR"])
`,
	})

	project, err := Evaluate(context.Background(), root, "build.star", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", project.Tasks["show"].Env["FLAVOR"])
	assert.Equal(t, "debug", project.Options["flavor"].Default())

	project, err = Evaluate(context.Background(), root, "build.star", map[string]string{"flavor": "release"})
	require.NoError(t, err)
	assert.Equal(t, "release", project.Tasks["show"].Env["FLAVOR"])
}

func TestEvaluateOptionOnlyInRoot(t *testing.T) {
	_, err := evaluate(t, map[string]string{
		"build.star":     `include(":app")`,
		"app/build.star": `option("flavor")`,
	})
	assert.Error(t, err)
}

func TestEvaluateRecordsDependencies(t *testing.T) {
	t.Setenv("BUILDCONF_TEST_FLAG", "on")

	project, err := evaluate(t, map[string]string{
		"build.star": `
flag = getenv("BUILDCONF_TEST_FLAG")
version = read_yaml("versions.yml", "tools.gradle", "0")
has_local = isfile("local.properties")
`,
		"versions.yml": "tools:\n  gradle: 7.0.2\n",
	})
	require.NoError(t, err)

	assert.Contains(t, project.EnvKeys, "BUILDCONF_TEST_FLAG")
	assert.Contains(t, project.Inputs, filepath.Join(project.Root, "versions.yml"))
	assert.Contains(t, project.Probes, filepath.Join(project.Root, "local.properties"))
}

func TestEvaluateExecuteMarksUncacheable(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `output = execute("echo hi")`,
	})
	require.NoError(t, err)
	assert.True(t, project.Uncacheable)
}

func TestEvaluateMavenRepositories(t *testing.T) {
	project, err := evaluate(t, map[string]string{
		"build.star": `
allprojects(repositories = [
    maven("https://example.com/maven2/", name = "example"),
    maven("file:///srv/maven"),
    maven("local-repo"),
    maven("https://example.com/maven2"),
])
`,
	})
	require.NoError(t, err)

	require.Len(t, project.Repositories, 3)
	assert.Equal(t, "example", project.Repositories[0].Name)
	assert.Equal(t, "https://example.com/maven2", project.Repositories[0].URL)
	assert.Equal(t, filepath.FromSlash("/srv/maven"), project.Repositories[1].Dir)
	assert.Equal(t, filepath.Join(project.Root, "local-repo"), project.Repositories[2].Dir)
}
