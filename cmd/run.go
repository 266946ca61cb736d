package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	iface "OnnxInspector/interface"
	"OnnxInspector/inspector"
	"OnnxInspector/logger"
)

var quiet bool

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Inspect every image in dir and sort copies into Result_OK / Result_NG",
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

		updates, unsubscribe := a.inspector.Subscribe()
		barDone := make(chan struct{})
		go func() {
			defer close(barDone)
			if quiet {
				for range updates {
				}
				return
			}
			renderProgress(updates)
		}()

		summary, runErr := a.inspector.Run(cmd.Context(), dir)
		unsubscribe()
		<-barDone

		fmt.Fprintln(os.Stderr)
		fmt.Println(summary.Status)
		fmt.Printf("OK: %d  NG: %d  Skipped: %d  Errored: %d\n",
			summary.Counts.OK, summary.Counts.NG, summary.Counts.Skipped, summary.Counts.Errored)
		if summary.State == iface.StateFailed {
			return runErr
		}
		if summary.State == iface.StateCancelled {
			return errors.New("inspection cancelled")
		}
		return nil
	},
}

func sourceDir(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfg.SourceDir != "" {
		return cfg.SourceDir, nil
	}
	return "", errors.New("no source directory given and none configured")
}

// renderProgress draws a terminal bar from progress snapshots until the
// channel closes.
func renderProgress(updates <-chan iface.Progress) {
	bar := progressbar.NewOptions(1,
		progressbar.OptionSetDescription("Loading models..."),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)
	total := 1
	for p := range updates {
		if p.Total > 0 && p.Total != total {
			total = p.Total
			bar.ChangeMax(total)
		}
		bar.Describe(fmt.Sprintf("%s %s", inspector.FormatElapsed(p.Elapsed), p.Status))
		_ = bar.Set(p.Current)
	}
}

func init() {
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not draw the progress bar")
}
