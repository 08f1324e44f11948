package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pingcap/report-engine/pkg/datafactory"
)

func newDataSourcesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasources",
		Short: "List the configured data sources and their queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, cfg, err := root.loadCatalog()
			if err != nil {
				return err
			}
			named, err := datafactory.FromDataSources(ds)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			for _, n := range named {
				var queries []string
				// spreadsheets only know their sheets once opened
				if n.Kind == "spreadsheet" {
					if err := n.Factory.Initialize(ctx, sourceContext(ds, cfg)); err != nil {
						fmt.Fprintf(out, "%-20s %-12s error: %v\n", n.Name, n.Kind, err)
						continue
					}
					queries = n.Factory.QueryNames()
					n.Factory.Close()
				} else {
					queries = n.Factory.QueryNames()
				}
				sort.Strings(queries)
				fmt.Fprintf(out, "%-20s %-12s %s\n", n.Name, n.Kind, strings.Join(queries, ", "))
			}
			if ds.Cache.Size > 0 {
				fmt.Fprintf(out, "\nquery cache: %d results\n", ds.Cache.Size)
			}
			return nil
		},
	}
}
