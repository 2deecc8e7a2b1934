package buildsys

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/buildconf/pkg/resolver"
)

type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) ToTask() (*Task, error) {
	return nil, nil
}

func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

type TaskCmdTaskRef struct {
	Task *Task
}

func (t TaskCmdTaskRef) ToTask() (*Task, error) {
	return t.Task, nil
}

func (t TaskCmdTaskRef) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

type TaskCmd interface {
	ToTask() (*Task, error)
	ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error)
}

// ActionClean marks the built-in clean task
const ActionClean = "clean"

// Task contains the processed values passed to task() by the build script
type Task struct {
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Project      string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Hidden       bool
	// Action selects a native implementation instead of Cmds
	Action string
	// Paths are the directories removed by the clean action
	Paths []string
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

// Names returns the visible task names in sorted order
func (l TaskList) Names() []string {
	names := make([]string, 0, len(l))
	for name, task := range l {
		if !task.Hidden {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}

type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// RepositorySpec describes a repository declared in the build script
type RepositorySpec struct {
	Name string
	// URL is a remote Maven repository URL. Local repositories use Dir instead.
	URL string
	Dir string
}

// Repository creates the resolver repository for this declaration
func (r RepositorySpec) Repository(client *http.Client, userAgent string) resolver.Repository {
	if r.Dir != "" {
		return &resolver.LocalRepository{RepoName: r.Name, Dir: r.Dir}
	}

	repo := resolver.NewMavenRepository(r.Name, r.URL)
	if client != nil {
		repo.Client = client
	}
	repo.UserAgent = userAgent
	return repo
}

func (r RepositorySpec) location() string {
	if r.Dir != "" {
		return r.Dir
	}
	return r.URL
}

// Subproject is an independently configurable module of the project
type Subproject struct {
	// Path is the Gradle-style project path (i.e. :app or :libs:core)
	Path     string
	Name     string
	Dir      string
	BuildDir string
	// EvaluationDeps lists the paths of the subprojects that have to be evaluated first
	EvaluationDeps []string
	Properties     map[string]string
	Evaluated      bool
}

func (s *Subproject) addEvaluationDep(target string) {
	for _, dep := range s.EvaluationDeps {
		if dep == target {
			return
		}
	}
	s.EvaluationDeps = append(s.EvaluationDeps, target)
}

// Project is the evaluated build configuration. It's built once per evaluation and passed to every consumer.
type Project struct {
	Root   string
	Script string
	// BuildDir is the root output directory. All subproject outputs live below it once relocated.
	BuildDir  string
	Relocated bool
	// BuildscriptRepositories are used to resolve Classpath, Repositories are inherited by all projects
	BuildscriptRepositories []RepositorySpec
	Repositories            []RepositorySpec
	Classpath               []resolver.Coordinate
	Subprojects             []*Subproject
	// EvaluationOrder lists subproject paths in the order they were evaluated
	EvaluationOrder []string
	Tasks           TaskList
	Options         map[string]ScriptOption

	// Inputs, Probes and EnvKeys record what the evaluation depended on. They're used to validate the cache.
	Inputs      []string
	Probes      []string
	EnvKeys     []string
	Uncacheable bool
}

// Subproject looks up a subproject by its path
func (p *Project) Subproject(path string) *Subproject {
	for _, sub := range p.Subprojects {
		if sub.Path == path {
			return sub
		}
	}
	return nil
}

// Implement starlark.Value for *Task

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task" to indicate this type
func (t *Task) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *Task) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not hashable
func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}

// starRepository is the script-side value returned by google(), maven_central(), ...
type starRepository struct {
	spec RepositorySpec
}

func (r starRepository) String() string {
	return fmt.Sprintf("<Repository %s: %s>", r.spec.Name, r.spec.location())
}

func (r starRepository) Type() string {
	return "repository"
}

func (r starRepository) Freeze() {}

func (r starRepository) Truth() starlark.Bool {
	return starlark.True
}

func (r starRepository) Hash() (uint32, error) {
	return starlark.String(r.spec.Name + "\x00" + r.spec.location()).Hash()
}

// starDependency is the script-side value returned by classpath()
type starDependency struct {
	coordinate resolver.Coordinate
}

func (d starDependency) String() string {
	return fmt.Sprintf("<Dependency %s>", d.coordinate)
}

func (d starDependency) Type() string {
	return "dependency"
}

func (d starDependency) Freeze() {}

func (d starDependency) Truth() starlark.Bool {
	return starlark.True
}

func (d starDependency) Hash() (uint32, error) {
	return starlark.String(d.coordinate.String()).Hash()
}

// starProject exposes a subproject's read-only attributes to its build script
type starProject struct {
	sub *Subproject
}

var _ starlark.HasAttrs = starProject{}

func (p starProject) String() string {
	return fmt.Sprintf("<Project %s>", p.sub.Path)
}

func (p starProject) Type() string {
	return "project"
}

func (p starProject) Freeze() {}

func (p starProject) Truth() starlark.Bool {
	return starlark.True
}

func (p starProject) Hash() (uint32, error) {
	return starlark.String(p.sub.Path).Hash()
}

func (p starProject) AttrNames() []string {
	return []string{"build_dir", "dir", "name", "path"}
}

func (p starProject) Attr(name string) (starlark.Value, error) {
	switch name {
	case "path":
		return starlark.String(p.sub.Path), nil
	case "name":
		return starlark.String(p.sub.Name), nil
	case "dir":
		return StarlarkPath(p.sub.Dir), nil
	case "build_dir":
		return StarlarkPath(p.sub.BuildDir), nil
	}

	// nil, nil makes starlark report a missing attribute
	return nil, nil
}
