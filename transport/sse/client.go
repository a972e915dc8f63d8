// Package sse bridges server-sent cart signals into the local signal bus,
// and serves such a stream for the reference server.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
)

const component = "transport/sse"

// IdentitySource decides which identity the stream request carries.
type IdentitySource interface {
	RequestIdentity(ctx context.Context) (identity.Identity, error)
}

// ResetSource reads a text/event-stream and publishes every event whose
// name is signal.CartReset onto a signal.Bus. Other events are ignored.
type ResetSource struct {
	URL         string
	Client      *http.Client
	Bus         *signal.Bus
	Identity    IdentitySource // optional
	GuestHeader string

	// RetryWait is the delay between reconnects in Run. The server may
	// override it with a retry: field.
	RetryWait time.Duration

	Logger *logging.Logger
}

// NewResetSource creates a ResetSource for url publishing onto bus.
func NewResetSource(url string, bus *signal.Bus, httpClient *http.Client) *ResetSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ResetSource{
		URL:       url,
		Client:    httpClient,
		Bus:       bus,
		RetryWait: 2 * time.Second,
		Logger:    logging.Default().WithComponent(logging.Component(component)),
	}
}

// Subscribe connects once and publishes signals until the stream ends or
// ctx is cancelled. It returns ctx.Err() on cancellation and nil when the
// server closes the stream.
func (s *ResetSource) Subscribe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return errors.E(errors.Op("sse.Subscribe"), errors.Component(component), errors.KindInvalid, err, "build request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.Identity != nil {
		id, err := s.Identity.RequestIdentity(ctx)
		if err != nil {
			return errors.E(errors.Op("sse.Subscribe"), errors.Component(component), err, "resolve identity")
		}
		id.Apply(req, s.GuestHeader)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.E(errors.Op("sse.Subscribe"), errors.Component(component), errors.KindTransport, err, "http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.E(errors.Op("sse.Subscribe"), errors.Component(component), errors.KindRemote,
			&errors.RemoteStatusError{StatusCode: resp.StatusCode})
	}

	var event string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 4<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			// blank line dispatches the event
			s.dispatch(event)
			event = ""
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "retry:"):
			if ms, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(line, "retry:")) + "ms"); err == nil && ms > 0 {
				s.RetryWait = ms
			}
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := sc.Err(); err != nil {
		return errors.E(errors.Op("sse.Subscribe"), errors.Component(component), errors.KindTransport, err, "scan")
	}
	return nil
}

// Run calls Subscribe until ctx is cancelled, waiting RetryWait between
// connections.
func (s *ResetSource) Run(ctx context.Context) error {
	for {
		err := s.Subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger().LogWarn(ctx, err, "Reset stream failed, reconnecting",
				slog.Duration("retry_wait", s.RetryWait))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryWait):
		}
	}
}

func (s *ResetSource) dispatch(event string) {
	if event != signal.CartReset || s.Bus == nil {
		return
	}
	n := s.Bus.Publish(signal.CartReset)
	s.logger().Debug("Cart reset received from stream", slog.Int("listeners", n))
}

func (s *ResetSource) logger() *logging.Logger {
	if s.Logger == nil {
		return logging.Default()
	}
	return s.Logger
}

// formatEvent renders one server-sent event.
func formatEvent(name, data string) string {
	if data == "" {
		data = "{}"
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}
