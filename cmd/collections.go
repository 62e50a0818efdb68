package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List Raindrop collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			collections, err := appInstance.Archiver().Collections(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collections: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tCOUNT")
			for _, c := range collections {
				fmt.Fprintf(w, "%d\t%s\t%d\n", c.ID, c.Title, c.Count)
			}
			return w.Flush()
		},
	}
}
