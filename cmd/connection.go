package main

import (
	"context"
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/vitruvian-monitor/internal/bt"
	"github.com/lowaak/vitruvian-monitor/internal/capture"
	"github.com/lowaak/vitruvian-monitor/internal/config"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/session"
)

// OpenLink opens the link selected by --link. The returned cleanup closes it and
// anything it depends on.
func OpenLink(ctx context.Context) (link.Link, func(), error) {
	switch cfg.Link.Kind {
	case config.LinkBLE:
		return openBLE(ctx)

	case config.LinkWebSocket:
		l, err := link.DialWebSocket(ctx, logger, link.WebSocketConfig{
			URL:           cfg.Link.URL,
			SkipTLSVerify: cfg.Link.SkipTLSVerify,
		})
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil

	case config.LinkSim:
		l := link.NewSimLink(logger, cfg.Sim.LinkConfig(cfg.Link.FramingValue()))
		return l, func() { _ = l.Close() }, nil

	case config.LinkReplay:
		return openReplay(cfg.Link.Capture)

	default:
		return nil, nil, fmt.Errorf("%w: link %q", config.ErrInvalidConfig, cfg.Link.Kind)
	}
}

func openBLE(ctx context.Context) (link.Link, func(), error) {
	manager := bt.NewBTManager(bluetooth.DefaultAdapter, logger, 0)
	if err := manager.Enable(); err != nil {
		return nil, nil, fmt.Errorf("enable BLE stack: %w", err)
	}

	manager.StartScan()
	machine, err := findMachine(ctx, manager)
	if stopErr := manager.StopScan(); stopErr != nil {
		logger.Printf("Connection: stop scan: %v", stopErr)
	}
	if err != nil {
		manager.Shutdown()
		return nil, nil, err
	}

	l, err := manager.Connect(ctx, machine, cfg.Link.PollInterval)
	if err != nil {
		manager.Shutdown()
		return nil, nil, err
	}
	return l, manager.Shutdown, nil
}

// findMachine waits for --address, or for the strongest machine when none is given
func findMachine(ctx context.Context, manager *bt.BTManager) (bt.Machine, error) {
	scanCtx, cancel := context.WithTimeout(ctx, cfg.Link.ScanTimeout)
	defer cancel()
	return manager.WaitForMachine(scanCtx, cfg.Link.Address)
}

func openReplay(path string) (link.Link, func(), error) {
	player, err := capture.OpenPlayer(logger, path, cfg.Link.Paced)
	if err != nil {
		return nil, nil, err
	}
	// a capture carries its own framing
	cfg.Link.Framing = player.Header().FramingValue().String()
	return player, func() { _ = player.Close() }, nil
}

// workoutParams builds the configured workout
func workoutParams() (session.Params, error) {
	cmd, err := cfg.Workout.Command()
	if err != nil {
		return session.Params{}, err
	}
	return session.Params{
		Command:       cmd,
		Rep:           cfg.Workout.RepConfig(),
		SkipCountdown: cfg.Workout.SkipCountdown,
	}, nil
}

// sessionOptions maps the config onto the session. replay follows recorded time.
func sessionOptions(params session.Params, replay bool) session.Options {
	return session.Options{
		Framing:          cfg.Link.FramingValue(),
		SpikeThreshold:   cfg.Filter.SpikeThreshold,
		AutoStop:         cfg.AutoStop.Settings(),
		HandleThreshold:  cfg.Handles.Threshold,
		AutoStart:        cfg.Handles.AutoStart,
		AutoStartParams:  params,
		CountdownSeconds: cfg.Workout.CountdownSeconds,
		AutoStartSeconds: cfg.Handles.CountdownSeconds,
		ClockFromFrames:  replay,
	}
}
