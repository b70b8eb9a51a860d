// Package mariadb reads the HR directory used to seed users.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Connection defaults for the HR directory.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// Options tunes the HR directory connection. Zero values keep what the DSN
// sets, falling back to the defaults.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Pool is a read-only connection to the HR directory. Every query runs in a
// READ ONLY transaction.
type Pool struct {
	db *sql.DB
}

// readOnlyConfig parses dsn and applies the import timeouts.
func readOnlyConfig(dsn string, opts Options) (*mysql.Config, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}

	switch {
	case opts.ConnectTimeout > 0:
		cfg.Timeout = opts.ConnectTimeout
	case cfg.Timeout == 0:
		cfg.Timeout = DefaultConnectTimeout
	}
	switch {
	case opts.ReadTimeout > 0:
		cfg.ReadTimeout = opts.ReadTimeout
	case cfg.ReadTimeout == 0:
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return cfg, nil
}

// NewPool connects to the HR directory.
func NewPool(dsn string, opts Options) (*Pool, error) {
	cfg, err := readOnlyConfig(dsn, opts)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure MariaDB: %w", err)
	}

	db := sql.OpenDB(connector)
	// The import reads one batch at a time.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// readOnly runs fn inside a READ ONLY transaction.
func (p *Pool) readOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
