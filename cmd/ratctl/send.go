package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/ratlink/internal/config"
	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/protocol/session"
	"github.com/spf13/cobra"
)

func sendCmd(opts *globalOptions) *cobra.Command {
	var await time.Duration
	cmd := &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send one command: turn-left, turn-right, move-forward, move-backward, debug-motors, configure <k_p> <k_d>",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := protocol.ParseCommand(args[0], args[1:]...)
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			_, err = exchange(cmd.Context(), cfg, c, await, newPrinter(cmd.OutOrStdout()))
			return err
		},
	}
	cmd.Flags().DurationVar(&await, "await", 0, "print events for this long after sending")
	return cmd
}

func configureCmd(opts *globalOptions) *cobra.Command {
	def := protocol.DefaultConfigure()
	var (
		kp, kd  float32
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Set the PD controller gains and wait for the robot to echo them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			want := protocol.Configure{KP: kp, KD: kd}
			p, err := exchange(cmd.Context(), cfg, want, timeout, newPrinter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			got, ok := p.lastConfig()
			if !ok {
				return fmt.Errorf("no config_updated within %s", timeout)
			}
			if got.KP != want.KP || got.KD != want.KD {
				return fmt.Errorf("robot reports k_p=%g k_d=%g, want k_p=%g k_d=%g", got.KP, got.KD, want.KP, want.KD)
			}
			return nil
		},
	}
	cmd.Flags().Float32Var(&kp, "kp", def.KP, "proportional gain")
	cmd.Flags().Float32Var(&kd, "kd", def.KD, "derivative gain")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for the echo")
	return cmd
}

// exchange opens one session, sends c, and prints events for await. For Configure
// it stops early once a matching config_updated arrives.
func exchange(ctx context.Context, cfg config.Config, c protocol.Command, await time.Duration, p *printer) (*printer, error) {
	s := session.New(cfg.Factory()(), cfg.Session)
	if err := s.Open(ctx); err != nil {
		return p, err
	}
	defer s.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(runCtx) }()

	if err := s.Send(ctx, c); err != nil {
		return p, err
	}
	fmt.Fprintf(p.out, "sent %v\n", c)
	if await <= 0 {
		return p, nil
	}

	want, isConfigure := c.(protocol.Configure)
	timer := time.NewTimer(await)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return p, <-errc
			}
			ev.Accept(p)
			if got, match := ev.(protocol.ConfigUpdated); match && isConfigure && got.KP == want.KP && got.KD == want.KD {
				return p, nil
			}
		case <-timer.C:
			return p, nil
		case <-ctx.Done():
			return p, nil
		}
	}
}
