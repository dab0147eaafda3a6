package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/vitruvian-monitor/internal/config"
	"github.com/lowaak/vitruvian-monitor/internal/logging"
)

const logTailLines = 500

var (
	configFile string

	v         = viper.New()
	cfg       config.Config
	logger    *log.Logger
	logCloser io.Closer
	logTail   *logging.Tail
)

var rootCmd = &cobra.Command{
	Use:   "vitruvian",
	Short: "Vitruvian trainer telemetry monitor",
	Long: `Vitruvian - connect to a V-Form or Trainer+ machine, follow its cable telemetry,
count reps and drive workouts from the terminal.

Connection modes:
  BLE:       --link ble [--address AA:BB:CC:DD:EE:FF]
  Relay:     --link ws --url ws://host:8080/ws
  Simulator: --link sim
  Replay:    --link replay --capture session.cbor

Settings are read from ~/.vitruvian/config.yaml (or --config), then VITRUVIAN_*
environment variables (VITRUVIAN_WORKOUT_WEIGHT_KG=12.5), then flags.`,
	Version:           "0.4.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPostRun: teardown,
}

func init() {
	// assigned here rather than in the literal: setup refers to rootCmd
	rootCmd.PersistentPreRunE = setup

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ~/.vitruvian/config.yaml)")

	// Connection flags
	pf.String("link", config.LinkBLE, "Link kind: ble, ws, sim or replay")
	pf.StringP("address", "a", "", "BLE address (default: strongest machine)")
	pf.StringP("url", "u", "", "Relay WebSocket URL (ws:// or wss://)")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	pf.String("framing", "opcode", "Rep notification framing: opcode or legacy")
	pf.String("capture", "", "Capture file for --link replay")
	pf.Bool("paced", true, "Replay at recorded speed")

	// Logging flags
	pf.String("log-file", "", "Log file (default ~/.vitruvian/vitruvian.log)")
	pf.BoolP("verbose", "v", false, "Also log to stderr")
}

// addWorkoutFlags registers the workout selection flags on commands that start sets
func addWorkoutFlags(fs *pflag.FlagSet) {
	fs.StringP("mode", "m", "old_school", "Program mode (old_school, pump, tut, tut_beast, eccentric_only) or echo")
	fs.Float64P("weight", "w", 10, "Weight per cable in kg")
	fs.String("echo-level", "hard", "Echo level: hard, harder, hardest or epic")
	fs.Int("eccentric", 100, "Echo eccentric load percent")
	fs.Int("warmup", 3, "Warmup reps")
	fs.IntP("reps", "r", 10, "Working reps (0 for no target)")
	fs.Bool("just-lift", false, "Just Lift: no rep target, stop when the handles are put down")
	fs.Bool("amrap", false, "As many reps as possible: ignore the working target")
	fs.Bool("stop-at-top", false, "Finish the last rep at the top")
	fs.Bool("no-countdown", false, "Skip the 5 second start countdown")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logTail = logging.NewTail(logTailLines)
	logger, logCloser = logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		// the dashboard owns the terminal
		Stderr: cfg.Log.Stderr && cmd.Name() != monitorCmd.Name(),
		Extra:  []io.Writer{logTail},
	})
	logger.Printf("vitruvian %s: %s", rootCmd.Version, cmd.CommandPath())
	if f := config.UsedFile(v); f != "" {
		logger.Printf("Config: loaded %s", f)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if logCloser != nil {
		_ = logCloser.Close()
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
