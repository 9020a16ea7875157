package commands

import (
	"github.com/exceptionaljs/exapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var rankDir string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the module dependency graph in Graphviz DOT format",
	Long: `Print every registered module and its dependencies as a Graphviz DOT
graph.

Examples:
  exapp graph | dot -Tsvg > modules.svg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := newRegistry(cfg, prometheus.NewRegistry())
		return reg.ExportDOT(cmd.OutOrStdout(),
			exapp.DOTWithGraphName(cfg.Name),
			exapp.DOTWithRankDir(rankDir),
			exapp.DOTWithPriorities(),
		)
	},
}

func init() {
	graphCmd.Flags().StringVar(&rankDir, "rankdir", "LR", "Graph rank direction (LR, TB, RL, BT)")
}
