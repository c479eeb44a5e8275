package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available wizard definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTEPS\tTITLE\tSOURCE")
			for _, id := range reg.IDs() {
				def, _ := reg.Get(id)
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", def.ID, def.Kind, def.StepCount(), def.Title, reg.Source(id))
			}
			return w.Flush()
		},
	}
}
