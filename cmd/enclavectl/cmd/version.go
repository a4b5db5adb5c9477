package cmd

import (
	"github.com/spf13/cobra"

	"github.com/enclaveops/enclavectl/internal/constants"
	"github.com/enclaveops/enclavectl/internal/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of the CLI",
	Run: func(_ *cobra.Command, _ []string) {
		output.KeyValue("CLI version", *constants.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
