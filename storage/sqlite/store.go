// Package sqlite provides a SQLite implementation of identity.KVStore, the
// device-local storage that keeps the guest token and credentials across
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	stdSync "sync"
	"time"

	cartErrors "github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const component = "storage/sqlite"

// ErrStoreClosed is returned by every method after Close.
var ErrStoreClosed = errors.New("store is closed")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration options for the KV store.
type Config struct {
	// DataSourceName is the connection string for the SQLite database,
	// e.g. "file:cart.db" or ":memory:".
	DataSourceName string

	// EnableWAL appends "_journal_mode=WAL" to DataSourceName so several
	// processes on the same device can share the file.
	EnableWAL bool

	// TableName defaults to "kv".
	TableName string

	// BusyTimeout is how long a writer waits on a locked database.
	// Defaults to 5s.
	BusyTimeout time.Duration

	// Logger defaults to the package default logger.
	Logger *logging.Logger
}

func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "kv"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.WithComponent(logging.Component(component))
	}
	params := []string{fmt.Sprintf("_busy_timeout=%d", c.BusyTimeout.Milliseconds())}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		params = append(params, "_journal_mode=WAL")
	}
	if c.DataSourceName != "" && !strings.Contains(c.DataSourceName, "_busy_timeout=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		c.DataSourceName += sep + strings.Join(params, "&")
	}
}

// DefaultConfig returns a Config with WAL enabled for the file at path.
func DefaultConfig(path string) *Config {
	return &Config{
		DataSourceName: "file:" + path,
		EnableWAL:      true,
	}
}

// KV is a string key-value table in SQLite. It implements identity.KVStore.
type KV struct {
	db        *sql.DB
	mu        stdSync.RWMutex
	closed    bool
	logger    *logging.Logger
	tableName string
}

var _ identity.KVStore = (*KV)(nil)

// Open opens (creating if needed) the KV store at path.
func Open(path string) (*KV, error) {
	return New(DefaultConfig(path))
}

// New creates a KV store from a Config.
func New(config *Config) (*KV, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}
	config.setDefaults()
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}

	logger := config.Logger
	logger.Debug("Opening SQLite key-value store",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between our own writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	kv := &KV{
		db:        db,
		logger:    logger,
		tableName: config.TableName,
	}
	if err := kv.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	logger.Debug("SQLite key-value store initialized", slog.String("table_name", config.TableName))
	return kv, nil
}

func (s *KV) setupSchema() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        key        TEXT PRIMARY KEY,
        value      TEXT NOT NULL,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );`, s.tableName)
	_, err := s.db.Exec(query)
	return err
}

func (s *KV) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Get returns identity.ErrNotFound when key is absent.
func (s *KV) Get(ctx context.Context, key string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var value string
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.tableName)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", identity.ErrNotFound
	}
	if err != nil {
		return "", cartErrors.WrapOpComponentKind(err, cartErrors.OpGuestToken, component, cartErrors.KindStorage)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *KV) Set(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return cartErrors.WrapOpComponentKind(err, cartErrors.OpCredential, component, cartErrors.KindStorage)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return cartErrors.WrapOpComponentKind(err, cartErrors.OpCredential, component, cartErrors.KindStorage)
	}
	return nil
}

// GetOrCreate inserts value unless key exists and returns the stored value.
// Insert and read run in one transaction, so two processes sharing the
// database file agree on a single value.
func (s *KV) GetOrCreate(ctx context.Context, key, value string) (result string, err error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", cartErrors.WrapOpComponentKind(err, cartErrors.OpGuestToken, component, cartErrors.KindStorage)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	insert := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, s.tableName)
	res, err := tx.ExecContext(ctx, insert, key, value)
	if err != nil {
		return "", cartErrors.WrapOpComponentKind(err, cartErrors.OpGuestToken, component, cartErrors.KindStorage)
	}

	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.tableName)
	if err = tx.QueryRowContext(ctx, query, key).Scan(&result); err != nil {
		return "", cartErrors.WrapOpComponentKind(err, cartErrors.OpGuestToken, component, cartErrors.KindStorage)
	}
	if err = tx.Commit(); err != nil {
		return "", cartErrors.WrapOpComponentKind(err, cartErrors.OpGuestToken, component, cartErrors.KindStorage)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("Created key", slog.String("key", key))
	}
	return result, nil
}

// Close closes the database connection.
func (s *KV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
