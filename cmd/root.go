package cmd

import (
	"github.com/spf13/cobra"

	bcmd "github.com/ngld/buildconf/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "buildconf",
	Short: "Build configuration tool",
	Long: `buildconf evaluates the build.star scripts of a project, resolves the pinned build tooling
from the declared repositories and runs the declared tasks (including clean).`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to a buildconf.toml file (defaults to ./buildconf.toml)")
	flags.StringP("project", "C", "", "directory inside the project (defaults to the working directory)")
	flags.Bool("log-json", false, "print JSON log events instead of console messages")
	flags.BoolP("verbose", "v", false, "print debug messages")

	rootCmd.AddCommand(bcmd.TaskCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
