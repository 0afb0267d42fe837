package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newURLCmd(g *globalFlags) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "url [term...]",
		Short: "Print the request URL a search would send",
		Long: `Build the search request from the same flags as search and print
its URL without contacting the service.`,
		Example: `  crd url --type reference --where 'question all 地図 古地図'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), req.URL(g.endpoint))
			return err
		},
	}
	f.register(cmd)
	return cmd
}
