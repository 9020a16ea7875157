package commands

import (
	"io"
	"strconv"
	"strings"

	"github.com/exceptionaljs/exapp"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order [modules...]",
	Short: "Print the resolved start order",
	Long: `Resolve the requested modules (or the configured ones) and print the order
they would start in, without starting anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := newRegistry(cfg, prometheus.NewRegistry())

		names := args
		if len(names) == 0 {
			names = cfg.Modules
		}
		order, err := exapp.Resolve(reg, names...)
		if err != nil {
			return err
		}
		return printOrder(cmd.OutOrStdout(), reg, order)
	},
}

func printOrder(w io.Writer, reg *exapp.Registry, order []string) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Module", "Priority", "Dependencies"})

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for i, name := range order {
		m, _ := reg.Lookup(name)
		deps := "-"
		if len(m.Dependencies) > 0 {
			deps = strings.Join(m.Dependencies, ", ")
		}
		table.Append([]string{strconv.Itoa(i + 1), name, strconv.Itoa(m.Priority), deps})
	}
	table.Render()
	return nil
}
