package main

import (
	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/capture"
)

var replayStart bool

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Run a capture file through the rep counter",
	Long: `Feed a recorded capture through a session and print the reps and sets it
produces. Timing follows the recorded frames, so --paced=false replays instantly
with the same results. Use "monitor --link replay --capture <file>" for the dashboard.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayStart, "start", true, "Start the configured workout when playback begins")
	addWorkoutFlags(replayCmd.Flags())
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	l, cleanup, err := openReplay(args[0])
	if err != nil {
		return err
	}
	defer cleanup()
	player := l.(*capture.Player)

	params, err := workoutParams()
	if err != nil {
		return err
	}

	h := player.Header()
	printf(cmd, "Replaying %s: %s, recorded %s\n", args[0], h.Device, h.Started().Format("2006-01-02 15:04:05"))

	s, runErr := runHeadless(ctx, cmd, headlessArgs{
		link:    l,
		opts:    sessionOptions(params, true),
		params:  params,
		startAt: replayStart,
	})

	printf(cmd, "Played %d frames\n", player.Played())
	printf(cmd, "%s\n", s.Stats())
	if runErr != nil {
		return runErr
	}
	return player.Err()
}
