package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
)

const sendSettle = 500 * time.Millisecond

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Write a single command to the machine",
	Long: `Encode one command, connect, write it and disconnect. No session runs, so
reps are not counted; use "monitor" for that.`,
}

var sendProgramCmd = &cobra.Command{
	Use:     "program",
	Short:   "Start a program set (--mode, --weight)",
	Args:    cobra.NoArgs,
	Example: "  vitruvian send program --mode pump --weight 12.5",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := protocol.ParseProgramMode(cfg.Workout.Mode)
		if !ok {
			return fmt.Errorf("%w: unknown program mode %q", protocol.ErrInvalidCommand, cfg.Workout.Mode)
		}
		return sendOne(cmd, protocol.ProgramCommand{Mode: mode, WeightPerCableKg: cfg.Workout.WeightKg})
	},
}

var sendEchoCmd = &cobra.Command{
	Use:     "echo",
	Short:   "Start an echo set (--echo-level, --eccentric)",
	Args:    cobra.NoArgs,
	Example: "  vitruvian send echo --echo-level harder",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, ok := protocol.ParseEchoLevel(cfg.Workout.EchoLevel)
		if !ok {
			return fmt.Errorf("%w: unknown echo level %q", protocol.ErrInvalidCommand, cfg.Workout.EchoLevel)
		}
		return sendOne(cmd, protocol.EchoCommand{Level: level, EccentricLoadPercent: cfg.Workout.EccentricLoad})
	},
}

var sendStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne(cmd, protocol.StopCommand{})
	},
}

var sendInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Send the connection init command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne(cmd, protocol.InitCommand{})
	},
}

func init() {
	addWorkoutFlags(sendCmd.PersistentFlags())
	sendCmd.AddCommand(sendProgramCmd, sendEchoCmd, sendStopCmd, sendInitCmd)
	rootCmd.AddCommand(sendCmd)
}

// sendOne encodes before connecting so a bad command never reaches the machine
func sendOne(cmd *cobra.Command, c protocol.Command) error {
	data, err := c.Encode()
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

	linkCtx, stop := context.WithCancel(ctx)
	defer stop()
	if err := l.Start(linkCtx, func(link.Frame) {}); err != nil {
		return fmt.Errorf("start %s: %w", l.Name(), err)
	}
	if err := l.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", c.Describe(), err)
	}
	logger.Printf("Send: %s to %s", c.Describe(), l.Name())
	printf(cmd, "Sent %s (% X)\n", c.Describe(), data)

	// give the write time to leave the adapter before disconnecting
	select {
	case <-ctx.Done():
	case <-time.After(sendSettle):
	}
	return nil
}
