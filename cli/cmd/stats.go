package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show signaling server totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(globalOptions())
		if err != nil {
			return err
		}

		stopSpinner := ui.RunSpinner("Fetching server stats...")
		stats, err := newAPIClient(cfg).Stats(cmd.Context())
		stopSpinner()
		if err != nil {
			return callerr.New("server stats", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle(ui.IconStats + " " + cfg.Domain)
		t.AppendHeader(table.Row{"Metric", "Value"})
		for _, row := range ui.StatsRows(stats.Rooms, stats.Participants) {
			t.AppendRow(table.Row{row[0], row[1]})
		}
		t.SetStyle(table.StyleRounded)
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
		})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
