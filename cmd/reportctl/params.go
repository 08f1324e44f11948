package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pingcap/report-engine/pkg/parameters"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
)

func newParamsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Work with report parameter sheets",
	}
	cmd.AddCommand(newParamsValidateCmd(root))
	return cmd
}

func newParamsValidateCmd(root *rootOptions) *cobra.Command {
	var sheet string
	var offline bool
	cmd := &cobra.Command{
		Use:   "validate --sheet params.yaml [key=value ...]",
		Short: "Validate parameter values against a parameter sheet",
		Long: `Validate parameter values against a parameter sheet.

List parameters are checked against their queries, which run on the
configured data sources. Use --offline to skip data sources; list
parameters are then only converted, not checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := parameters.LoadDefinition(sheet)
			if err != nil {
				return err
			}
			values, err := parseAssignments(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pc := &parameters.DefaultContext{Values: values}
			if offline {
				for _, p := range def.Parameters {
					p.List = nil
				}
			} else {
				c, err := root.openCatalog(ctx)
				if err != nil {
					return err
				}
				defer c.Close()
				pc.Factory = c.factory
				pc.Config = c.cfg
				pc.Resources = c.dfc.Resources
			}

			result, err := parameters.Validate(ctx, pc, def, values)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			params := result.Parameters()
			for _, name := range def.Names() {
				v, _ := params.Get(name)
				fmt.Fprintf(out, "%s = %s\n", name, sections.FormatValue(v))
			}
			for _, m := range result.Messages() {
				fmt.Fprintf(out, "[%s] %s\n", m.Severity, m.Message)
			}
			for _, name := range result.ParameterNames() {
				for _, m := range result.ParameterMessages(name) {
					fmt.Fprintf(out, "[%s] %s: %s\n", m.Severity, name, m.Message)
				}
			}
			if result.HasErrors() {
				return &parameters.ValidationError{Result: result}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Path to the parameter sheet (YAML)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not connect to data sources")
	cmd.MarkFlagRequired("sheet")
	return cmd
}
