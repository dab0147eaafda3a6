package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/vitruvian-monitor/internal/bt"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List Vitruvian machines in range",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Second, "How long to scan")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	ctx, cancelScan := context.WithTimeout(ctx, scanTimeout)
	defer cancelScan()

	manager := bt.NewBTManager(bluetooth.DefaultAdapter, logger, 0)
	defer manager.Shutdown()
	if err := manager.Enable(); err != nil {
		return fmt.Errorf("enable BLE stack: %w", err)
	}

	ch := make(chan []bt.Machine, 1)
	defer manager.ListenToMachines(ch)()

	printf(cmd, "Scanning for %s...\n", scanTimeout)
	manager.StartScan()
	reported := make(map[string]bool)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case machines := <-ch:
			for _, m := range machines {
				if !reported[m.Address] {
					reported[m.Address] = true
					printf(cmd, "  found %s\n", formatMachine(m))
				}
			}
		}
	}
	if err := manager.StopScan(); err != nil {
		logger.Printf("Scan: stop scan: %v", err)
	}

	machines := manager.Machines()
	if len(machines) == 0 {
		printf(cmd, "No machines found\n")
		return nil
	}
	printf(cmd, "\n%d machine(s), strongest first:\n", len(machines))
	for i, m := range machines {
		printf(cmd, "  %d. %s\n", i+1, formatMachine(m))
	}
	return nil
}

func formatMachine(m bt.Machine) string {
	return fmt.Sprintf("%-20s %s  RSSI %d", m.Name, m.Address, m.RSSI)
}
