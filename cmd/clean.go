package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/buildconf/pkg/buildsys"
	bcmd "github.com/ngld/buildconf/pkg/buildsys/cmd"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [option=value...]",
	Short: "Deletes the shared build output directory",
	Long:  `Runs the clean task registered with register_clean(). Deleting a missing directory is not an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		session, err := bcmd.NewSession(cmd)
		if err != nil {
			return err
		}

		_, options := bcmd.SplitArgs(args)
		project, err := session.LoadProject(options)
		if err != nil {
			return err
		}

		if _, ok := project.Tasks[buildsys.ActionClean]; !ok {
			return eris.Errorf("%s doesn't call register_clean()", project.Script)
		}

		return buildsys.RunTask(session.Ctx, project, buildsys.ActionClean, dryRun, false)
	},
}

func init() {
	cleanCmd.Flags().BoolP("dry", "n", false, "only print what would be deleted")

	rootCmd.AddCommand(cleanCmd)
}
