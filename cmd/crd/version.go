package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/crd/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the crd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "crd", version.String())
		},
	}
}
