package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	project      *Project
	// current is nil while the root script is evaluated
	current *Subproject
	tasks   []*Task
	// subprojectsConfigured is set once subprojects() ran; relocation and include() are rejected afterwards
	subprojectsConfigured bool
	cleanTask             *Task
	inputs                map[string]bool
	probes                map[string]bool
	envKeys               map[string]bool
	// failure keeps typed errors raised by builtins intact, starlark only reports them as text
	failure error
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

func (ctx *parserCtx) isRoot() bool {
	return ctx.current == nil
}

func (ctx *parserCtx) addProbe(path string) {
	ctx.probes[path] = true
}

func (ctx *parserCtx) addInput(path string) {
	ctx.inputs[path] = true
}

func (ctx *parserCtx) fail(err error) error {
	ctx.failure = err
	return err
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		case StarlarkPath:
			result = append(result, string(value))
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func listItems(input *starlark.List) []starlark.Value {
	if input == nil {
		return nil
	}

	result := make([]starlark.Value, input.Len())
	for idx := range result {
		result[idx] = input.Index(idx)
	}
	return result
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, nil
}

func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	envVars := make([]string, 0, len(parts))
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}
		envVars = append(envVars, value.GoString())
	}

	var cmd *syntax.CallExpr
	if len(envVars) > 0 {
		joinedEnvVars := strings.Join(envVars, " ")
		result, err := parser.Parse(strings.NewReader(joinedEnvVars), "env vars")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command vars %s", joinedEnvVars)
		}

		if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}

		var ok bool
		cmd, ok = result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || cmd.Assigns == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}
	} else {
		cmd = new(syntax.CallExpr)
	}

	argCount := len(parts) - len(envVars)
	cmd.Args = make([]*syntax.Word, argCount)
	for a, arg := range parts[len(envVars):] {
		var encodedValue string

		switch value := arg.(type) {
		case starlark.String:
			encodedValue = value.GoString()
		case StarlarkPath:
			encodedValue = string(value)

			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				relValue, err := filepath.Rel(base, encodedValue)
				if err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		default:
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		var wordPart syntax.WordPart
		if strings.ContainsAny(encodedValue, " $'") {
			node := new(syntax.SglQuoted)
			node.Value = encodedValue
			wordPart = node
		} else {
			node := new(syntax.Lit)
			node.Value = encodedValue
			wordPart = node
		}

		cmd.Args[a] = new(syntax.Word)
		cmd.Args[a].Parts = []syntax.WordPart{wordPart}
	}

	return cmd, nil
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	filepath := simplifyPath(ctx, ctx.filepath)

	log(ctx.ctx).Info().
		Msgf("%s:%d:%d: %s", filepath, pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	filepath := simplifyPath(ctx, ctx.filepath)

	log(ctx.ctx).Warn().
		Msgf("%s:%d:%d: %s", filepath, pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// qualifyTaskName turns a task reference into its global name. Root tasks have plain names, subproject
// tasks are prefixed with the subproject path (i.e. :app:assemble).
func qualifyTaskName(project, name string) string {
	if strings.HasPrefix(name, ":") {
		if strings.Count(name, ":") == 1 {
			return name[1:]
		}
		return name
	}

	if project == "" || strings.HasPrefix(name, "auto#") {
		return name
	}
	return project + ":" + name
}

// * Builtin functions

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.isRoot() {
		return nil, eris.New("options can only be declared in the root build script")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps *starlark.List
	var skipIfExists *starlark.List
	var inputs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List

	ctx := getCtx(thread)
	task := new(Task)

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short?", &task.Short, "hidden?", &task.Hidden,
		"desc?", &task.Desc, "deps?", &deps, "base?", &task.Base, "skip_if_exists?", &skipIfExists, "inputs?",
		&inputs, "outputs?", &outputs, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	if task.Short == "" {
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	} else if strings.Contains(task.Short, ":") {
		return nil, eris.Errorf("task name %s must not contain colons", task.Short)
	}

	if !ctx.isRoot() {
		task.Project = ctx.current.Path
	}
	task.Short = qualifyTaskName(task.Project, task.Short)

	if task.Short == ActionClean {
		return nil, eris.New(`the task name "clean" is reserved, use register_clean() instead`)
	}

	task.Env = map[string]string{}

	if task.Base == "" {
		task.Base = "."
	}
	task.Base = normalizePath(ctx, task.Base)

	rawDeps, err := starlarkIterable2stringSlice(deps, "deps")
	if err != nil {
		return nil, err
	}

	task.Deps = make([]string, len(rawDeps))
	for idx, dep := range rawDeps {
		task.Deps[idx] = qualifyTaskName(task.Project, dep)
	}

	task.SkipIfExists, err = starlarkIterable2stringSlice(skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	task.Inputs, err = starlarkIterable2stringSlice(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	task.Outputs, err = starlarkIterable2stringSlice(outputs, "outputs")
	if err != nil {
		return nil, err
	}

	if env != nil {
		for _, rawKey := range env.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}

			value, ok := rawValue.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", rawValue.Type(), key.GoString())
			}
			task.Env[key.GoString()] = value.GoString()
		}
	}

	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	parser := syntax.NewParser()
	task.Cmds = make([]TaskCmd, 0)

	for idx, item := range listItems(cmds) {
		var parts starlark.Tuple

		switch value := item.(type) {
		case starlark.String:
			task.Cmds = append(task.Cmds, TaskCmdScript{TaskName: task.Short, Index: idx, Content: value.GoString()})
			continue
		case *Task:
			task.Cmds = append(task.Cmds, TaskCmdTaskRef{Task: value})
			continue
		case starlark.Tuple:
			parts = value
		case *starlark.List:
			parts = starlark.Tuple(listItems(value))
		default:
			return nil, eris.Errorf("%s: unexpected type %s. Only strings, tuples, lists and tasks are valid", fn.Name(), item.Type())
		}

		cmd, err := processCmdParts(parts, parser, task.Base)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to process command #%d", idx)
		}

		strBuffer.Reset()
		err = printer.Print(&strBuffer, cmd)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to process command #%d", idx)
		}

		task.Cmds = append(task.Cmds, TaskCmdScript{TaskName: task.Short, Index: idx, Content: strBuffer.String()})
	}

	if inputs != nil && inputs.Len() > 0 && (outputs == nil || outputs.Len() == 0) {
		warn(thread, "%s: found inputs but no outputs", fn.Name())
	}

	ctx.tasks = append(ctx.tasks, task)
	return task, nil
}

func commonBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"execute":      starlark.NewBuiltin("execute", starExec),
		"task":         starlark.NewBuiltin("task", task),
	}
}

func rootBuiltins() starlark.StringDict {
	builtins := commonBuiltins()
	for name, fn := range map[string]func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error){
		"option":                option,
		"google":                starGoogle,
		"maven_central":         starMavenCentral,
		"maven_local":           starMavenLocal,
		"maven":                 starMaven,
		"classpath":             starClasspath,
		"buildscript":           starBuildscript,
		"allprojects":           starAllprojects,
		"include":               starInclude,
		"set_build_dir":         starSetBuildDir,
		"subprojects":           starSubprojects,
		"evaluation_depends_on": starEvaluationDependsOn,
		"register_clean":        starRegisterClean,
	} {
		builtins[name] = starlark.NewBuiltin(name, fn)
	}
	return builtins
}

func subprojectBuiltins() starlark.StringDict {
	builtins := commonBuiltins()
	builtins["project"] = starlark.NewBuiltin("project", starProjectInfo)
	builtins["ext"] = starlark.NewBuiltin("ext", starExt)
	builtins["property"] = starlark.NewBuiltin("property", starProperty)
	return builtins
}

func (ctx *parserCtx) exec(thread *starlark.Thread, filename string, builtins starlark.StringDict) error {
	ctx.filepath = filename
	ctx.addInput(filename)

	script, err := os.ReadFile(filename)
	if err != nil {
		return eris.Wrapf(err, "failed to read file %s", filename)
	}

	_, err = starlark.ExecFile(thread, simplifyPath(ctx, filename), script, builtins)
	if err != nil {
		if ctx.failure != nil {
			log(ctx.ctx).Debug().Msg(err.Error())
			return ctx.failure
		}

		if evalError, ok := err.(*starlark.EvalError); ok {
			return eris.Errorf("failed to execute %s:\n%s", simplifyPath(ctx, filename), evalError.Backtrace())
		}
		return eris.Wrapf(err, "failed to execute %s", simplifyPath(ctx, filename))
	}

	return nil
}

// Evaluate runs the root build script of the given project followed by the build scripts of all included
// subprojects (in evaluation order) and returns the resulting configuration. Nothing is written to disk.
func Evaluate(ctx context.Context, projectRoot, scriptName string, options map[string]string) (*Project, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	if options == nil {
		options = map[string]string{}
	}

	project := &Project{
		Root:     projectRoot,
		Script:   scriptName,
		BuildDir: filepath.Join(projectRoot, "build"),
		Tasks:    TaskList{},
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		projectRoot:  projectRoot,
		project:      project,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string),
		yamlCache:    make(map[string]interface{}),
		inputs:       make(map[string]bool),
		probes:       make(map[string]bool),
		envKeys:      make(map[string]bool),
	}
	thread.SetLocal("parserCtx", &threadCtx)

	err = threadCtx.exec(thread, filepath.Join(projectRoot, scriptName), rootBuiltins())
	if err != nil {
		return nil, err
	}

	err = validateProject(project)
	if err != nil {
		return nil, err
	}

	if threadCtx.cleanTask != nil {
		threadCtx.cleanTask.Paths = []string{project.BuildDir}
		threadCtx.cleanTask.Desc = "Deletes " + simplifyPath(&threadCtx, project.BuildDir)
	}

	order, err := EvaluationOrder(project.Subprojects)
	if err != nil {
		return nil, err
	}

	for _, path := range order {
		sub := project.Subproject(path)
		script := filepath.Join(sub.Dir, scriptName)
		threadCtx.addProbe(script)

		stat, err := os.Stat(script)
		if err == nil && stat.Mode().IsRegular() {
			log(ctx).Debug().Str("project", sub.Path).Msg("evaluating")

			threadCtx.current = sub
			thread.Name = sub.Path
			err = threadCtx.exec(thread, script, subprojectBuiltins())
			if err != nil {
				return nil, eris.Wrapf(err, "failed to evaluate project %s", sub.Path)
			}
		} else if err != nil && !eris.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "failed to check %s", script)
		}

		sub.Evaluated = true
		project.EvaluationOrder = append(project.EvaluationOrder, sub.Path)
	}
	threadCtx.current = nil

	for _, task := range threadCtx.tasks {
		if _, present := project.Tasks[task.Short]; present {
			return nil, eris.Errorf("task %s was declared twice", task.Short)
		}
		project.Tasks[task.Short] = task

		for name, value := range threadCtx.envOverrides {
			if _, present := task.Env[name]; !present {
				task.Env[name] = value
			}
		}
	}

	for _, task := range project.Tasks {
		for _, dep := range task.Deps {
			if _, ok := project.Tasks[dep]; !ok {
				return nil, eris.Errorf("task %s depends on unknown task %s", task.Short, dep)
			}
		}
	}

	project.Options = threadCtx.options
	project.Inputs = sortedKeys(threadCtx.inputs)
	project.Probes = sortedKeys(threadCtx.probes)
	project.EnvKeys = sortedKeys(threadCtx.envKeys)

	return project, nil
}

// validateProject checks the invariants of the root configuration before any subproject is evaluated
func validateProject(project *Project) error {
	if containsPath(project.BuildDir, project.Root) {
		return eris.Errorf("the build directory %s contains the project root %s, clean would delete the sources", project.BuildDir, project.Root)
	}

	owners := make(map[string]string, len(project.Subprojects))
	for _, sub := range project.Subprojects {
		if other, present := owners[sub.BuildDir]; present {
			return eris.Errorf("projects %s and %s share the build directory %s", other, sub.Path, sub.BuildDir)
		}
		owners[sub.BuildDir] = sub.Path

		if containsPath(sub.BuildDir, sub.Dir) {
			return eris.Errorf("the build directory %s of project %s contains its sources", sub.BuildDir, sub.Path)
		}

		if containsPath(project.BuildDir, sub.Dir) {
			return eris.Errorf("the build directory %s contains the sources of project %s, clean would delete them", project.BuildDir, sub.Path)
		}
	}

	return nil
}

func sortedKeys(set map[string]bool) []string {
	result := make([]string, 0, len(set))
	for key := range set {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}
