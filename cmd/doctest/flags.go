package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/doctest/option"
)

func newFlagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List the option flags usable in directives",
		Long: `List the option flags that may appear in directive comments
("# doctest: +ELLIPSIS"), in --option and in the config file's options.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := option.NewRegistry()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Flag", "Kind"})
			for _, name := range registry.Names() {
				f, _ := registry.Lookup(name)
				kind := "reporting"
				if option.ComparisonFlags&f != 0 {
					kind = "comparison"
				}
				t.AppendRow(table.Row{name, kind})
			}
			t.SetStyle(table.StyleLight)
			t.Render()
			return nil
		},
	}
}
