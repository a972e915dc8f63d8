package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/transport/sse"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval    time.Duration
	MetricsAddr string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cart loaded and print every change",
		Long: `Keep the cart loaded and print every change.

When reset_stream_url is configured, cart-reset events from the server
clear the local cart. The cart is reloaded every --interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, s *session) error {
				return runWatch(ctx, opts, s, NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout()))
			})
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "reload interval; 0 disables polling")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, s *session, out *OutputFormatter) error {
	cancel := s.engine.Subscribe(func(state cart.State) {
		if out.Format == "json" {
			_ = out.JSON(state)
			return
		}
		out.Cart(state)
	})
	defer cancel()

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.LogError(ctx, err, "Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	if s.cfg.ResetStreamURL != "" {
		source := sse.NewResetSource(s.cfg.ResetStreamURL, s.engine.Bus(), nil)
		source.Identity = s.resolver
		source.GuestHeader = s.cfg.GuestHeader
		source.Logger = s.logger
		go func() { _ = source.Run(ctx) }()
	}

	if res := s.start(ctx); res.Failed() {
		s.logger.LogWarn(ctx, res.Err, "Initial cart load failed")
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if res := s.engine.Reload(ctx); res.Failed() {
				s.logger.LogWarn(ctx, res.Err, "Cart reload failed", slog.String("next_in", opts.Interval.String()))
			}
		}
	}
}
