package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/mediagraph/registry"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the node factories.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg := registry.New(nil, registry.Builtin()...)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, f := range reg.Factories() {
			fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Description)
		}

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}
