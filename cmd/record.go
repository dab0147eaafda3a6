package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/capture"
	"github.com/lowaak/vitruvian-monitor/internal/link"
)

var recordStart bool

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Record raw link frames to a capture file",
	Long: `Follow the link headlessly and write every frame to a CBOR capture file
until Ctrl+C or the link goes away. Play it back with "vitruvian replay".`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().BoolVar(&recordStart, "start", false, "Start the configured workout right away")
	addWorkoutFlags(recordCmd.Flags())
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
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

	rec, err := capture.CreateRecorder(args[0], capture.NewHeader(cfg.Link.FramingValue(), l.Name(), time.Now()))
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var recordErr error
	tap := func(f link.Frame) {
		mu.Lock()
		defer mu.Unlock()
		if recordErr != nil {
			return
		}
		if err := rec.Record(f); err != nil {
			recordErr = err
			logger.Printf("Record: %v", err)
		}
	}

	s, runErr := runHeadless(ctx, cmd, headlessArgs{
		link:    l,
		opts:    sessionOptions(params, false),
		params:  params,
		startAt: recordStart,
		tap:     tap,
	})

	if err := rec.Close(); err != nil && recordErr == nil {
		recordErr = err
	}
	printf(cmd, "Recorded %d frames to %s\n", rec.Count(), args[0])
	printf(cmd, "%s\n", s.Stats())

	if runErr != nil {
		return runErr
	}
	if recordErr != nil {
		return fmt.Errorf("record %s: %w", args[0], recordErr)
	}
	return nil
}
