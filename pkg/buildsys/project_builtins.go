package buildsys

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/ngld/buildconf/pkg/resolver"
)

// normalizeProjectPath turns "app" or ":libs:core" into the canonical ":app" / ":libs:core" form
func normalizeProjectPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, ":") {
		path = ":" + path
	}

	for _, segment := range strings.Split(path[1:], ":") {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
			return "", eris.Errorf("invalid project path %s", path)
		}
	}

	return path, nil
}

func toPathString(value starlark.Value, field string) (string, error) {
	switch value := value.(type) {
	case starlark.String:
		return value.GoString(), nil
	case StarlarkPath:
		return string(value), nil
	}

	return "", eris.Errorf("%s: got %s, want string or path", field, value.Type())
}

// * Repositories

func starGoogle(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	return starRepository{spec: RepositorySpec{Name: "google", URL: resolver.GoogleURL}}, nil
}

func starMavenCentral(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	return starRepository{spec: RepositorySpec{Name: "mavenCentral", URL: resolver.MavenCentralURL}}, nil
}

func starMavenLocal(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	return starRepository{spec: RepositorySpec{Name: "mavenLocal", Dir: resolver.DefaultLocalDir()}}, nil
}

func starMaven(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var location starlark.Value
	var name string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "url", &location, "name?", &name)
	if err != nil {
		return nil, err
	}

	url, err := toPathString(location, "url")
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = url
	}

	spec := RepositorySpec{Name: name}
	switch {
	case strings.HasPrefix(url, "file://"):
		spec.Dir = filepath.FromSlash(strings.TrimPrefix(url, "file://"))
	case strings.Contains(url, "://"):
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return nil, eris.Errorf("unsupported repository URL %s", url)
		}
		spec.URL = strings.TrimSuffix(url, "/")
	default:
		spec.Dir = normalizePath(getCtx(thread), url)
	}

	return starRepository{spec: spec}, nil
}

func appendRepositories(existing []RepositorySpec, list *starlark.List) ([]RepositorySpec, error) {
	for idx, item := range listItems(list) {
		repo, ok := item.(starRepository)
		if !ok {
			return nil, eris.Errorf("repositories: item %d is a %s, want repository", idx, item.Type())
		}

		duplicate := false
		for _, other := range existing {
			if other.location() == repo.spec.location() {
				duplicate = true
				break
			}
		}

		if !duplicate {
			existing = append(existing, repo.spec)
		}
	}

	return existing, nil
}

// * Tooling dependencies

func starClasspath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var raw string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &raw)
	if err != nil {
		return nil, err
	}

	coordinate, err := resolver.ParseCoordinate(raw)
	if err != nil {
		return nil, err
	}

	return starDependency{coordinate: coordinate}, nil
}

func starBuildscript(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var repositories *starlark.List
	var dependencies *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "repositories?", &repositories, "dependencies?", &dependencies)
	if err != nil {
		return nil, err
	}

	project := getCtx(thread).project
	project.BuildscriptRepositories, err = appendRepositories(project.BuildscriptRepositories, repositories)
	if err != nil {
		return nil, err
	}

	for idx, item := range listItems(dependencies) {
		var coordinate resolver.Coordinate

		switch value := item.(type) {
		case starDependency:
			coordinate = value.coordinate
		case starlark.String:
			coordinate, err = resolver.ParseCoordinate(value.GoString())
			if err != nil {
				return nil, err
			}
		default:
			return nil, eris.Errorf("dependencies: item %d is a %s, want classpath() or string", idx, item.Type())
		}

		duplicate := false
		for _, other := range project.Classpath {
			if other.Key() != coordinate.Key() || other.Classifier != coordinate.Classifier {
				continue
			}

			if other.Version != coordinate.Version {
				if newer, ok := resolver.NewerVersion(other.Version, coordinate.Version); ok {
					return nil, eris.Errorf("%s is declared with conflicting versions %s and %s, keep only %s", coordinate.Key(), other.Version, coordinate.Version, newer)
				}
				return nil, eris.Errorf("%s is declared with conflicting versions %s and %s", coordinate.Key(), other.Version, coordinate.Version)
			}
			duplicate = true
		}

		if !duplicate {
			project.Classpath = append(project.Classpath, coordinate)
		}
	}

	return starlark.None, nil
}

func starAllprojects(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var repositories *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "repositories?", &repositories)
	if err != nil {
		return nil, err
	}

	project := getCtx(thread).project
	project.Repositories, err = appendRepositories(project.Repositories, repositories)
	if err != nil {
		return nil, err
	}

	return starlark.None, nil
}

// * Subprojects

func starInclude(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	ctx := getCtx(thread)
	if ctx.subprojectsConfigured {
		return nil, eris.New("include() has to be called before subprojects()")
	}

	for idx, arg := range args {
		raw, ok := arg.(starlark.String)
		if !ok {
			return nil, eris.Errorf("%s: argument %d is a %s, want string", fn.Name(), idx+1, arg.Type())
		}

		path, err := normalizeProjectPath(raw.GoString())
		if err != nil {
			return nil, err
		}

		if ctx.project.Subproject(path) != nil {
			return nil, eris.Errorf("project %s was included twice", path)
		}

		segments := strings.Split(path[1:], ":")
		dir := filepath.Join(append([]string{ctx.projectRoot}, segments...)...)
		ctx.project.Subprojects = append(ctx.project.Subprojects, &Subproject{
			Path:       path,
			Name:       segments[len(segments)-1],
			Dir:        dir,
			BuildDir:   filepath.Join(dir, "build"),
			Properties: map[string]string{},
		})
	}

	return starlark.None, nil
}

func starSetBuildDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &value)
	if err != nil {
		return nil, err
	}

	path, err := toPathString(value, "path")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.subprojectsConfigured {
		return nil, eris.New("set_build_dir() has to be called before subprojects(), otherwise the subprojects would keep stale output directories")
	}

	if strings.HasPrefix(path, "//") {
		path = filepath.Join(ctx.projectRoot, path[2:])
	}

	ctx.project.BuildDir = RelocateBuildDir(ctx.projectRoot, path)
	ctx.project.Relocated = true
	return StarlarkPath(ctx.project.BuildDir), nil
}

func starSubprojects(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	relocate := true
	var rawTarget starlark.Value = starlark.None

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "relocate_build_dirs?", &relocate, "evaluation_depends_on?", &rawTarget)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.subprojectsConfigured {
		return nil, eris.New("subprojects() can only be called once")
	}

	target := ""
	if rawTarget != starlark.None {
		value, ok := rawTarget.(starlark.String)
		if !ok {
			return nil, eris.Errorf("evaluation_depends_on: got %s, want string or None", rawTarget.Type())
		}

		target, err = normalizeProjectPath(value.GoString())
		if err != nil {
			return nil, err
		}

		if ctx.project.Subproject(target) == nil {
			return nil, ctx.fail(UndeclaredProjectError{Target: target})
		}
	}

	for _, sub := range ctx.project.Subprojects {
		if relocate {
			sub.BuildDir = SubprojectBuildDir(ctx.project.BuildDir, sub.Name)
		}

		// the target itself has nothing to wait for
		if target != "" && sub.Path != target {
			sub.addEvaluationDep(target)
		}
	}

	ctx.subprojectsConfigured = true
	return starlark.None, nil
}

func starEvaluationDependsOn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rawFrom string
	var rawTo string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &rawFrom, &rawTo)
	if err != nil {
		return nil, err
	}

	from, err := normalizeProjectPath(rawFrom)
	if err != nil {
		return nil, err
	}

	to, err := normalizeProjectPath(rawTo)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	sub := ctx.project.Subproject(from)
	if sub == nil {
		return nil, ctx.fail(UndeclaredProjectError{Target: from})
	}

	if ctx.project.Subproject(to) == nil {
		return nil, ctx.fail(UndeclaredProjectError{From: from, Target: to})
	}

	sub.addEvaluationDep(to)
	return starlark.None, nil
}

// * Maintenance

func starRegisterClean(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.cleanTask != nil {
		return nil, eris.New("the clean task was already registered")
	}

	// Paths and Desc are filled in once the root script finished since the build dir may still change
	ctx.cleanTask = &Task{
		Short:  ActionClean,
		Action: ActionClean,
		Base:   ctx.projectRoot,
		Env:    map[string]string{},
		Cmds:   []TaskCmd{},
	}
	ctx.tasks = append(ctx.tasks, ctx.cleanTask)

	return ctx.cleanTask, nil
}

// * Subproject scripts

func starProjectInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	return starProject{sub: getCtx(thread).current}, nil
}

func starExt(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, eris.Errorf("%s: only keyword arguments are supported", fn.Name())
	}

	sub := getCtx(thread).current
	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()

		switch value := kv[1].(type) {
		case starlark.String:
			sub.Properties[key] = value.GoString()
		case StarlarkPath:
			sub.Properties[key] = string(value)
		case starlark.Int, starlark.Bool, starlark.Float:
			sub.Properties[key] = value.String()
		default:
			return nil, eris.Errorf("%s: property %s has unsupported type %s", fn.Name(), key, value.Type())
		}
	}

	return starlark.None, nil
}

func starProperty(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rawPath string
	var key string
	var defaultValue starlark.Value

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &rawPath, "key", &key, "default?", &defaultValue)
	if err != nil {
		return nil, err
	}

	path, err := normalizeProjectPath(rawPath)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	sub := ctx.project.Subproject(path)
	if sub == nil {
		return nil, ctx.fail(UndeclaredProjectError{From: ctx.current.Path, Target: path})
	}

	if sub != ctx.current && !sub.Evaluated {
		return nil, eris.Errorf("project %s has not been evaluated yet, declare evaluation_depends_on(%q, %q) in the root build script",
			path, ctx.current.Path, path)
	}

	value, ok := sub.Properties[key]
	if !ok {
		if defaultValue != nil {
			return defaultValue, nil
		}
		return nil, eris.Errorf("project %s has no property %s", path, key)
	}

	return starlark.String(value), nil
}
