// Package cmd implements the task command and the shared CLI plumbing for the buildsys package
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ngld/buildconf/pkg/buildsys"
)

// SplitArgs separates key=value options from task names
func SplitArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	return taskArgs, options
}

var TaskCmd = &cobra.Command{
	Use:   "task [task...] [option=value...]",
	Short: "Runs tasks declared in the build scripts",
	Long: `This command evaluates the project's build scripts and executes the given tasks.
Without task names it lists the available tasks and options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		session, err := NewSession(cmd)
		if err != nil {
			return err
		}

		taskArgs, options := SplitArgs(args)
		project, err := session.LoadProject(options)
		if err != nil {
			session.Logger.Error().Err(err).Msg("failed to evaluate the build scripts")
			return err
		}

		if !dryRun && project.NeedsBuildDirs(taskArgs) {
			err = buildsys.EnsureBuildDirs(session.Ctx, project)
			if err != nil {
				session.Logger.Error().Err(err).Msg("failed to prepare the build directories")
				return err
			}
		}

		for _, name := range taskArgs {
			err = buildsys.RunTask(session.Ctx, project, name, dryRun, force)
			if err != nil {
				session.Logger.Error().Err(err).Msgf("failed task %s", name)
				return err
			}
		}

		if len(taskArgs) == 0 {
			printTasks(project)
		}

		return nil
	},
}

func printTasks(project *buildsys.Project) {
	names := project.Tasks.Names()

	fmt.Println("Available tasks:")
	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Printf(lineFmt, name+":", project.Tasks[name].Desc)
	}

	if len(project.Options) > 0 {
		fmt.Println("\nOptions:")
		optNames := make([]string, 0, len(project.Options))
		for name := range project.Options {
			optNames = append(optNames, name)
		}
		sort.Strings(optNames)

		for _, name := range optNames {
			opt := project.Options[name]
			fmt.Printf(" * %s=%s\n     %s\n", name, opt.Default(), opt.Help)
		}
	}
}

func init() {
	TaskCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	TaskCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
}
