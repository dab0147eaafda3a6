package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/link"
)

const relayShutdownTimeout = 5 * time.Second

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Share the link with WebSocket clients",
	Long: `Open the link and serve it on /ws, so other hosts can follow the same machine
with --link ws --url ws://<host><listen>/ws.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		l, cleanup, err := OpenLink(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		return serveRelay(ctx, cmd, l, relayListen)
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayListen, "listen", ":8080", "Address to serve /ws on")
	rootCmd.AddCommand(relayCmd)
}

// serveRelay blocks until ctx ends or the upstream link goes away
func serveRelay(ctx context.Context, cmd *cobra.Command, upstream link.Link, addr string) error {
	relay := link.NewRelay(logger, upstream)
	mux := http.NewServeMux()
	mux.Handle("/ws", relay)
	server := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go_func_utils.SafeGo(logger, "Relay server", func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	})
	logger.Printf("Relay: serving %s on %s/ws", upstream.Name(), addr)
	printf(cmd, "Serving %s on ws://%s/ws (Ctrl+C to stop)\n", upstream.Name(), addr)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	relayErr := make(chan error, 1)
	go_func_utils.SafeGo(logger, "Relay", func() { relayErr <- relay.Run(runCtx) })

	var err error
	select {
	case err = <-relayErr:
	case err = <-serveErr:
		stop()
		<-relayErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), relayShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	printf(cmd, "Relay stopped (%d frames dropped to slow clients)\n", relay.Dropped())
	return err
}
