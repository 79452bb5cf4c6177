package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	runsLimit      int
	runsJSONOutput bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent report runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
	runsCmd.Flags().BoolVar(&runsJSONOutput, "json", false, "Output in JSON format")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)

	db, err := openLocalStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.RecentRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if runsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"runs":  runs,
			"total": len(runs),
		})
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "JOB\tSTATUS\tROWS\tQUESTIONS\tSTARTED\tERROR")
	for _, run := range runs {
		errText := run.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			run.Job,
			run.Status,
			run.Rows,
			run.Questions,
			run.StartedAt.Format("2006-01-02 15:04"),
			errText,
		)
	}
	w.Flush()

	return nil
}
