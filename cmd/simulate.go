package main

import (
	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/link"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted machine without hardware",
	Long: `Run the simulated machine through a headless session, or with --listen serve it
as a relay so "monitor --link ws" on another host can drive it.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.String("listen", "", "Serve the simulator on this address instead of running a session")
	f.Bool("auto-lift", false, "Lift as soon as connected, as in Just Lift")
	f.Int("spike-every", 0, "Inject a position spike every N monitor frames")
	addWorkoutFlags(f)
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	sim := link.NewSimLink(logger, cfg.Sim.LinkConfig(cfg.Link.FramingValue()))
	defer func() { _ = sim.Close() }()

	if cfg.Sim.Listen != "" {
		return serveRelay(ctx, cmd, sim, cfg.Sim.Listen)
	}

	params, err := workoutParams()
	if err != nil {
		return err
	}
	s, runErr := runHeadless(ctx, cmd, headlessArgs{
		link:   sim,
		opts:   sessionOptions(params, false),
		params: params,
		// an auto-lifting machine arms auto-start on its own
		startAt: !cfg.Sim.AutoLift,
	})
	printf(cmd, "%s\n", s.Stats())
	return runErr
}
