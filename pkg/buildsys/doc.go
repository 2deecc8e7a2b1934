// Package buildsys evaluates Starlark build scripts describing a project's build configuration: the
// repositories tooling is fetched from, the pinned classpath, a relocated output directory shared by all
// subprojects, evaluation order constraints between subprojects and a small set of tasks (including clean).
// Task commands are executed with mvdan.cc/sh so the same scripts work on every platform.
package buildsys
