package cmd

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Long:  `Display the version, commit hash, and build date of the islet CLI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := GetFormatter()
		f.Writer = cmd.OutOrStdout()
		f.ErrWriter = cmd.ErrOrStderr()

		return f.Print(map[string]string{
			"version":   Version,
			"commit":    Commit,
			"buildDate": BuildDate,
		})
	},
}
