package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"

	"github.com/coder/serpent"

	"github.com/chalkboard/chalkboard/chalkd"
	"github.com/chalkboard/chalkboard/chalkd/database/dbmem"
)

// Server returns the command that runs chalkd. State lives in the
// in-memory store, so this is a development and evaluation server; a
// durable store slots in behind the same interface.
func (*RootCmd) Server() *serpent.Command {
	var (
		address string
		verbose bool
	)
	cmd := &serpent.Command{
		Use:   "server",
		Short: "Start the chalkd server.",
		Options: serpent.OptionSet{
			{
				Flag:        "address",
				Env:         "CHALKD_ADDRESS",
				Description: "Address to listen on.",
				Default:     "127.0.0.1:3000",
				Value:       serpent.StringOf(&address),
			},
			{
				Flag:        "verbose",
				Env:         "CHALKD_VERBOSE",
				Description: "Enable debug logging.",
				Value:       serpent.BoolOf(&verbose),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			logger := slog.Make(sloghuman.Sink(inv.Stderr))
			if verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			registry := prometheus.NewRegistry()
			api := chalkd.New(chalkd.Options{
				Logger:             logger.Named("chalkd"),
				Database:           dbmem.New(),
				PrometheusRegistry: registry,
			})

			mux := http.NewServeMux()
			mux.Handle("/", api.Handler)
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

			listener, err := net.Listen("tcp", address)
			if err != nil {
				return xerrors.Errorf("listen %q: %w", address, err)
			}
			defer listener.Close()

			srv := &http.Server{
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(listener)
			}()
			logger.Info(inv.Context(), "chalkd listening",
				slog.F("address", listener.Addr().String()),
			)

			select {
			case <-inv.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	return cmd
}
