package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/DetectorSim/internal/history"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long:  `List the most recent runs recorded in the history database (server.history_db).`,
	Example: `  # Last 20 runs
  detectorsim history --history-db ~/.local/share/detectorsim/history.db

  # Last 5 runs
  detectorsim history --limit 5`,
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	historyCmd.Flags().String("history-db", "", "SQLite file journaling finished runs")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Server.HistoryDB == "" {
		return fmt.Errorf("no history database configured (set server.history_db or --history-db)")
	}
	store, err := history.Open(cfg.Server.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tFINISHED\tCHANNEL\tCACHE\tPUBLISHED\tFPS\tMBps\tDROPS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t%d\t%s\n",
			r.RunID, humanize.Time(r.FinishedAt), r.Channel, r.CacheMode,
			r.Published, r.FrameRate, r.DataRateMBps, r.CacheDrops, r.Error)
	}
	return w.Flush()
}
