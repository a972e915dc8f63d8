package cartserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/transport/sse"
)

const (
	defaultMaxRequestSize      = 1 << 20
	defaultMaxDecompressedSize = 4 << 20
	shutdownTimeout            = 5 * time.Second
)

// Config configures the reference server.
type Config struct {
	Addr                string
	GuestHeader         string
	Authenticator       Authenticator
	MaxRequestSize      int64
	MaxDecompressedSize int64
	Catalog             []Product
	KeepAlive           time.Duration

	// Resets fans logout resets out to other instances. Nil publishes on
	// this server's event streams only.
	Resets ResetFanout

	Logger *logging.Logger
}

// Server is the reference cart API.
type Server struct {
	cfg    Config
	store  *Store
	events *sse.Broadcaster
	router *gin.Engine
	logger *logging.Logger
}

// New builds a Server. Zero fields of cfg fall back to defaults: opaque
// bearer tokens, the default guest header and catalog.
func New(cfg Config) *Server {
	if cfg.Authenticator == nil {
		cfg.Authenticator = OpaqueTokens{}
	}
	if cfg.GuestHeader == "" {
		cfg.GuestHeader = identity.DefaultGuestHeader
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	if cfg.MaxDecompressedSize <= 0 {
		cfg.MaxDecompressedSize = defaultMaxDecompressedSize
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	s := &Server{
		cfg:    cfg,
		store:  NewStore(cfg.Catalog...),
		events: sse.NewBroadcaster(nil, cfg.Logger),
		logger: cfg.Logger.WithComponent(logging.Component("cartserver")),
	}
	if cfg.KeepAlive > 0 {
		s.events.KeepAlive = cfg.KeepAlive
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(cfg.Logger), limitBody(cfg.MaxRequestSize, cfg.MaxDecompressedSize))
	RegisterRoutes(&r.RouterGroup, NewHandlers(s.store, s.events, cfg.Resets, cfg.Logger), cfg.Authenticator, cfg.GuestHeader)
	s.router = r
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

// Store returns the backing cart store.
func (s *Server) Store() *Store { return s.store }

// Broadcaster returns the event stream broadcaster.
func (s *Server) Broadcaster() *sse.Broadcaster { return s.events }

// Run serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Cart server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Cart server stopped")
	return nil
}
