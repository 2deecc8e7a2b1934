package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ngld/buildconf/pkg/buildsys"
	bcmd "github.com/ngld/buildconf/pkg/buildsys/cmd"
)

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func printProjects(out io.Writer, project *buildsys.Project) {
	fmt.Fprintf(out, "Root:      %s\n", project.Root)
	fmt.Fprintf(out, "Build dir: %s\n", relTo(project.Root, project.BuildDir))

	if len(project.BuildscriptRepositories) > 0 {
		fmt.Fprintln(out, "\nBuildscript repositories:")
		for _, repo := range project.BuildscriptRepositories {
			fmt.Fprintf(out, " * %s\n", repo.Name)
		}
	}

	if len(project.Classpath) > 0 {
		fmt.Fprintln(out, "\nClasspath:")
		for _, c := range project.Classpath {
			fmt.Fprintf(out, " * %s\n", c)
		}
	}

	if len(project.EvaluationOrder) > 0 {
		fmt.Fprintln(out, "\nProjects (in evaluation order):")
	}
	for _, path := range project.EvaluationOrder {
		sub := project.Subproject(path)
		fmt.Fprintf(out, " * %s\n     dir:       %s\n     build dir: %s\n", sub.Path, relTo(project.Root, sub.Dir),
			relTo(project.Root, sub.BuildDir))

		if len(sub.EvaluationDeps) > 0 {
			fmt.Fprintf(out, "     after:     %s\n", strings.Join(sub.EvaluationDeps, ", "))
		}
	}
}

var projectsCmd = &cobra.Command{
	Use:   "projects [option=value...]",
	Short: "Shows the evaluated project layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := bcmd.NewSession(cmd)
		if err != nil {
			return err
		}

		_, options := bcmd.SplitArgs(args)
		project, err := session.LoadProject(options)
		if err != nil {
			return err
		}

		printProjects(cmd.OutOrStdout(), project)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}
