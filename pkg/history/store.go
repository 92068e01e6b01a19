// Package history persists lifecycle events in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite = "sqlite"
	memoryPath   = ":memory:"

	pragmaTimeout = 5 * time.Second
)

// Config locates the history database.
type Config struct {
	// Path is a local filesystem path, a file: DSN, or ":memory:".
	Path string

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// Store is an open history database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) and migrates the history database.
//
// Local databases run with a single connection in WAL mode with a busy
// timeout, so concurrent sessions in one process queue rather than fail.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", dsn, err)
	}
	if err := prepare(ctx, db, dsn == memoryPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("History store open", zap.String("dsn", dsn))
	return &Store{db: db, logger: logger}, nil
}

// prepare checks the connection, applies pragmas and migrates.
func prepare(ctx context.Context, db *sql.DB, memory bool) error {
	// :memory: databases are per connection, and file databases are written
	// by one session at a time, so both run on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("history store unreachable: %w", err)
	}
	if !memory {
		pctx, cancel := context.WithTimeout(ctx, pragmaTimeout)
		defer cancel()
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			var ignored any
			if err := db.QueryRowContext(pctx, pragma).Scan(&ignored); err != nil {
				return fmt.Errorf("history %s: %w", strings.TrimPrefix(pragma, "PRAGMA "), err)
			}
		}
	}
	return Migrate(ctx, db)
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// buildDSN turns cfg.Path into a driver DSN and makes sure the parent
// directory of a file database exists.
func buildDSN(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("history store path is required")
	case path == memoryPath:
		return path, nil
	case strings.HasPrefix(path, "file:"):
		local, err := dsnFilePath(path)
		if err != nil {
			return "", err
		}
		return path, makeParentDir(local)
	default:
		path = filepath.Clean(path)
		return "file:" + path, makeParentDir(path)
	}
}

func dsnFilePath(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid history DSN %q: %w", dsn, err)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return strings.TrimPrefix(p, "//"), nil
}

func makeParentDir(path string) error {
	if path == "" || path == memoryPath {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history directory %s: %w", dir, err)
	}
	return nil
}
