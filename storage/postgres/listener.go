package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	stdSync "sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// DefaultResetChannel is the NOTIFY channel carrying cart resets.
const DefaultResetChannel = "cart_reset"

// ResetPayload is the JSON body of a reset notification.
type ResetPayload struct {
	User   string    `json:"user"`
	SentAt time.Time `json:"sent_at"`
}

// ResetHandler is called for every reset received, with the user whose
// sessions must drop their local cart.
type ResetHandler func(user string)

// ResetRelay publishes cart resets with NOTIFY and delivers the ones every
// instance publishes to local handlers through LISTEN. Each reference
// server instance runs one, so a logout served by any instance reaches
// the event streams held by all of them.
type ResetRelay struct {
	db       *sql.DB
	listener *pq.Listener
	channel  string
	logger   *logging.Logger

	mu       stdSync.RWMutex
	handlers []ResetHandler

	started atomic.Bool
	closed  atomic.Bool
	done    chan struct{}

	reconnectInterval time.Duration
	pingInterval      time.Duration
}

// NewResetRelay connects to the database at connectionString. A nil logger
// means the package default.
func NewResetRelay(connectionString string, logger *logging.Logger) (*ResetRelay, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(2)

	r := &ResetRelay{
		db:                db,
		channel:           DefaultResetChannel,
		logger:            logger.WithComponent(logging.Component(component)),
		done:              make(chan struct{}),
		reconnectInterval: 5 * time.Second,
		pingInterval:      90 * time.Second,
	}
	r.listener = pq.NewListener(connectionString, r.reconnectInterval, time.Minute, r.eventCallback)
	return r, nil
}

// OnReset registers h. Handlers run on the relay's goroutine.
func (r *ResetRelay) OnReset(h ResetHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Start listens on the reset channel and dispatches notifications until
// ctx is cancelled or Close is called.
func (r *ResetRelay) Start(ctx context.Context) error {
	if r.closed.Load() {
		return fmt.Errorf("relay is closed")
	}
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.listener.Listen(r.channel); err != nil {
		r.started.Store(false)
		return fmt.Errorf("failed to listen to channel %s: %w", r.channel, err)
	}
	go r.listenLoop(ctx)
	return nil
}

// PublishReset notifies every relay, this one included, that user's
// carts were reset.
func (r *ResetRelay) PublishReset(ctx context.Context, user string) error {
	if r.closed.Load() {
		return fmt.Errorf("relay is closed")
	}
	payload, err := json.Marshal(ResetPayload{User: user, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, r.channel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", r.channel, err)
	}
	return nil
}

// eventCallback handles pq.Listener connection events
func (r *ResetRelay) eventCallback(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		r.logger.Debug("Connected to PostgreSQL for LISTEN/NOTIFY")
	case pq.ListenerEventDisconnected:
		r.logger.Warn("Disconnected from PostgreSQL", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		// pq.Listener re-issues LISTEN on reconnect; notifications sent
		// while disconnected are lost.
		r.logger.Info("Reconnected to PostgreSQL")
	case pq.ListenerEventConnectionAttemptFailed:
		r.logger.Warn("Connection attempt failed", slog.Any("error", err))
	}
}

func (r *ResetRelay) listenLoop(ctx context.Context) {
	defer r.logger.Debug("Reset relay stopped")

	ping := time.NewTicker(r.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case n := <-r.listener.Notify:
			// nil after a reconnect
			if n != nil {
				r.handleNotification(n.Channel, n.Extra)
			}
		case <-ping.C:
			go func() {
				if err := r.listener.Ping(); err != nil {
					r.logger.Warn("Ping failed", slog.Any("error", err))
				}
			}()
		}
	}
}

func (r *ResetRelay) handleNotification(channel, extra string) {
	if channel != r.channel {
		return
	}
	var payload ResetPayload
	if err := json.Unmarshal([]byte(extra), &payload); err != nil || payload.User == "" {
		r.logger.Warn("Ignoring malformed reset notification", slog.String("payload", extra))
		return
	}

	r.mu.RLock()
	handlers := append([]ResetHandler(nil), r.handlers...)
	r.mu.RUnlock()
	for _, h := range handlers {
		h(payload.User)
	}
}

// Close stops listening and closes the connections.
func (r *ResetRelay) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.done)

	var firstErr error
	if r.listener != nil {
		if err := r.listener.Close(); err != nil {
			firstErr = err
		}
	}
	if err := r.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
