package cli

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	promMetrics "github.com/c0deZ3R0/go-cart-sync/metrics/prometheus"
	"github.com/c0deZ3R0/go-cart-sync/storage/postgres"
	"github.com/c0deZ3R0/go-cart-sync/storage/sqlite"
	"github.com/c0deZ3R0/go-cart-sync/synckit"
	"github.com/c0deZ3R0/go-cart-sync/transport/httptransport"
)

// session is one wired cart client: local storage, identity, transport and
// engine.
type session struct {
	cfg      synckit.Config
	logger   *logging.Logger
	kv       kvStore
	tokens   *httptransport.TokenManager
	resolver *identity.Resolver
	client   *httptransport.Client
	engine   *synckit.Engine
	registry *prometheus.Registry
}

type kvStore interface {
	identity.KVStore
	Close() error
}

// openKV opens the Postgres store for a postgres:// URL and the SQLite
// file at path otherwise.
func openKV(path string, logger *logging.Logger) (kvStore, error) {
	if postgres.IsConnectionString(path) {
		return postgres.New(&postgres.Config{
			ConnectionString: path,
			Logger:           logger.WithComponent(logging.Component("storage/postgres")),
		})
	}
	return sqlite.New(&sqlite.Config{
		DataSourceName: "file:" + path,
		EnableWAL:      true,
		Logger:         logger.WithComponent(logging.Component("storage/sqlite")),
	})
}

// loadConfig reads the config and sets up logging on stderr.
func loadConfig(opts *RootOptions, stderr io.Writer) (synckit.Config, *logging.Logger, error) {
	cfg, err := synckit.LoadConfig(opts.ConfigPath)
	if err != nil {
		return cfg, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	cfg.Logging.Output = stderr
	logging.Init(cfg.Logging)
	return cfg, logging.Default(), nil
}

func openSession(opts *RootOptions, stderr io.Writer) (*session, error) {
	cfg, logger, err := loadConfig(opts, stderr)
	if err != nil {
		return nil, err
	}

	kv, err := openKV(cfg.StoragePath, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open local storage", err)
	}

	s := &session{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		registry: prometheus.NewRegistry(),
	}
	s.tokens = httptransport.NewTokenManager(kv, httptransport.WithTokenLogger(logger))
	s.resolver = identity.NewResolver(kv, s.tokens)

	s.client, err = httptransport.NewClientWithLogger(cfg.BaseURL, s.resolver, nil, httptransport.OptionsFromConfig(cfg), logger)
	if err != nil {
		_ = kv.Close()
		return nil, WrapExitError(ExitCommandError, "create cart client", err)
	}

	s.engine, err = synckit.NewEngine(s.client, s.resolver,
		synckit.WithLogger(logger),
		synckit.WithMetrics(promMetrics.NewCollector(s.registry)),
	)
	if err != nil {
		_ = kv.Close()
		return nil, WrapExitError(ExitCommandError, "create engine", err)
	}
	return s, nil
}

// start hydrates the local cart from the server.
func (s *session) start(ctx context.Context) synckit.Result {
	return s.engine.Start(ctx)
}

func (s *session) Close() error {
	_ = s.engine.Close()
	return s.kv.Close()
}

// withSession opens a session, runs fn and closes the session.
func withSession(ctx context.Context, opts *RootOptions, stderr io.Writer, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(opts, stderr)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
