package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"OnnxInspector/logger"
)

var scoreCmd = &cobra.Command{
	Use:   "score [dir]",
	Short: "Write the raw anomaly score of every tagged image to ScoreLog.txt",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := sourceDir(args)
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg, logger.Log())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.inspector.Score(cmd.Context(), dir)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d scored, %d skipped, %d errored (of %d)\n",
			report.Path, report.Scored, report.Skipped, report.Errored, report.Total)
		return nil
	},
}
