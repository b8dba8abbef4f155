package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ratlink/internal/config"
	"github.com/danmuck/ratlink/internal/observability"
	"github.com/danmuck/ratlink/internal/protocol/session"
	"github.com/danmuck/ratlink/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	var (
		metricsAddr string
		redial      bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print robot events until interrupted or the link drops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("redial") {
				cfg.Redial = redial
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.MetricsAddr != "" {
				shutdown, err := serveMetrics(cfg.MetricsAddr)
				if err != nil {
					return err
				}
				defer shutdown()
			}
			return watch(ctx, cfg, newPrinter(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus /metrics on this address")
	cmd.Flags().BoolVar(&redial, "redial", false, "reconnect with backoff when the link drops")
	return cmd
}

// watch prints events until ctx is done or the link ends. Cancellation is not an error.
func watch(ctx context.Context, cfg config.Config, p *printer) error {
	var err error
	if cfg.Redial {
		err = watchRedial(ctx, cfg, p)
	} else {
		err = watchOnce(ctx, cfg, p)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func watchOnce(ctx context.Context, cfg config.Config, p *printer) error {
	s := session.New(cfg.Factory()(), cfg.Session)
	go logStates(s.Channel())
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close()

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	for ev := range s.Events() {
		ev.Accept(p)
	}
	return <-errc
}

func watchRedial(ctx context.Context, cfg config.Config, p *printer) error {
	r := session.NewRedialer(cfg.Factory(), cfg.Session)
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	for ev := range r.Events() {
		ev.Accept(p)
	}
	return <-errc
}

func logStates(ch transport.Channel) {
	for sc := range ch.States() {
		ev := log.Info()
		if sc.Err != nil {
			ev = log.Warn().Err(sc.Err)
		}
		ev.Str("channel", ch.ID()).Str("state", sc.State.String()).Msg("ratctl link")
	}
}

func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("ratctl metrics server")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("ratctl serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

