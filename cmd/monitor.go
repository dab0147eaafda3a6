package main

import (
	"context"
	"sync"

	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/config"
	"github.com/lowaak/vitruvian-monitor/internal/dashboard"
	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/session"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow a machine in the terminal dashboard",
	Long: `Open the link, show live cable telemetry and drive sets from the keyboard.

Keys:
  Space  start the configured workout
  X      stop the set
  N      next set (keeps the calibrated range)
  Esc/Q  quit`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	addWorkoutFlags(monitorCmd.Flags())
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	params, err := workoutParams()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	l, cleanup, err := OpenLink(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	s := session.NewSession(logger, l, sessionOptions(params, cfg.Link.Kind == config.LinkReplay))
	app := tview.NewApplication()
	d := dashboard.NewDashboard(dashboard.Args{
		Logger:  logger,
		App:     app,
		Session: s,
		Tail:    logTail,
		Workout: params,
	})

	runCtx, stopSession := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var runErr error
	go_func_utils.SafeGoWait(logger, &wg, "Session", func() {
		runErr = s.Run(runCtx)
		// link gone or Ctrl+C: take the dashboard down with it, even if it has not started yet
		app.QueueUpdate(app.Stop)
	})

	uiErr := d.Run()
	stopSession()
	wg.Wait()
	d.Shutdown()

	if st := s.Status(); st.Summary != nil {
		printSummary(cmd, *st.Summary)
	}
	if uiErr != nil {
		return uiErr
	}
	return runErr
}
