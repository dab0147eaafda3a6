package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
	"github.com/lowaak/vitruvian-monitor/internal/session"
)

type headlessArgs struct {
	link    link.Link
	opts    session.Options
	params  session.Params
	startAt bool             // start the workout as soon as the session runs
	tap     func(link.Frame) // optional raw frame tap
}

// runHeadless runs a session without the dashboard, printing workout progress, until ctx
// ends or the link goes away
func runHeadless(ctx context.Context, cmd *cobra.Command, args headlessArgs) (*session.Session, error) {
	opts := args.opts
	if args.startAt {
		// applied by Run before the first frame, so an unpaced replay cannot outrun it
		params := args.params
		opts.StartOnRun = &params
	}
	s := session.NewSession(logger, args.link, opts)
	if args.tap != nil {
		defer s.ListenToFrames(args.tap)()
	}

	statusCh := make(chan session.Status, 8)
	defer s.ListenToStatus(statusCh)()
	repCh := make(chan repcounter.RepEvent, 32)
	defer s.ListenToRepEvents(repCh)()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	go_func_utils.SafeGoWait(logger, &wg, "Headless report", func() {
		for {
			select {
			case <-runCtx.Done():
				for {
					select {
					case e := <-repCh:
						printRepEvent(cmd, e)
					case st := <-statusCh:
						printStatus(cmd, st)
					default:
						return
					}
				}
			case st := <-statusCh:
				printStatus(cmd, st)
			case e := <-repCh:
				printRepEvent(cmd, e)
			}
		}
	})

	err := s.Run(runCtx)
	cancel()
	wg.Wait()
	return s, err
}

func printStatus(cmd *cobra.Command, st session.Status) {
	switch st.State {
	case session.StateIdle:
		if st.AutoStartIn > 0 {
			printf(cmd, "Handles detected, starting in %d\n", st.AutoStartIn)
		} else {
			printf(cmd, "Idle\n")
		}
	case session.StateCountdown:
		printf(cmd, "Get ready: %d\n", st.Countdown)
	case session.StateActive:
		printf(cmd, "Set %s active\n", st.SessionID)
	case session.StateSetSummary:
		if st.Summary != nil {
			printSummary(cmd, *st.Summary)
		}
	}
}

func printRepEvent(cmd *cobra.Command, e repcounter.RepEvent) {
	switch e.Type {
	case repcounter.WarmupCompleted:
		printf(cmd, "  warmup rep %d\n", e.WarmupCount)
	case repcounter.WarmupComplete:
		printf(cmd, "  warmup complete\n")
	case repcounter.WorkingCompleted:
		printf(cmd, "  rep %d\n", e.WorkingCount)
	case repcounter.WorkoutComplete:
		printf(cmd, "  target reached\n")
	}
}

func printSummary(cmd *cobra.Command, s session.SetSummary) {
	printf(cmd, "Set complete (%s): %d warmup, %d working, %s, peak %.1f kg, avg %.1f kg per cable\n",
		s.Reason, s.WarmupReps, s.WorkingReps, s.Duration.Round(100*time.Millisecond), s.PeakLoadKg, s.AverageLoadKg)
}
