package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ratlink/internal/logging"
	"github.com/danmuck/ratlink/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ratsim: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultSimOptions()
	var (
		addr     string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:           "ratsim",
		Short:         "Simulate a Rat robot on a websocket so ratctl can run without hardware",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.InitLogger("ratsim")
			if logLevel != "" && !logging.SetLevel(logLevel) {
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr, newSimulator(opts))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":9999", "listen address")
	flags.DurationVar(&opts.interval, "interval", opts.interval, "period between count notifications")
	flags.IntVar(&opts.padTo, "pad", opts.padTo, "zero-pad notifications to this many bytes (0 sends exact frames)")
	flags.StringVar(&logLevel, "log-level", "", "trace|debug|info|warn|error|off")
	return cmd
}

func serve(ctx context.Context, addr string, sim *simulator) error {
	srv := &http.Server{Addr: addr, Handler: sim, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", addr).Dur("interval", sim.opts.interval).Msg("ratsim listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
