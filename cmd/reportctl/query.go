package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
	"github.com/pingcap/report-engine/pkg/table"
)

func newQueryCmd(root *rootOptions) *cobra.Command {
	var limit int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "query <query> [key=value ...]",
		Short: "Run a named query or free-form SQL and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			extra := make(map[string]any)
			if limit > 0 {
				extra[datafactory.ParamQueryLimit] = limit
			}
			if timeout > 0 {
				extra[datafactory.ParamQueryTimeout] = timeout
			}
			params = table.Merge(params, table.NewStaticDataRow(extra))

			ctx := cmd.Context()
			c, err := root.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if !c.factory.IsQueryExecutable(args[0], params) {
				return fmt.Errorf("no data source can run query %q", args[0])
			}
			qctx, cancel := datafactory.WithQueryTimeout(ctx, params)
			defer cancel()
			tm, err := c.factory.QueryData(qctx, args[0], params)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), tm)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows (0 means all)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Query timeout, e.g. 30s")
	return cmd
}

// printTable writes tm as aligned columns followed by a row count
func printTable(w io.Writer, tm *table.TableModel) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(tm.Columns(), "\t"))
	for r := 0; r < tm.RowCount(); r++ {
		cells := make([]string, tm.ColumnCount())
		for c := range cells {
			cells[c] = sections.FormatValue(tm.ValueAt(r, c))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", tm.RowCount())
	return err
}
