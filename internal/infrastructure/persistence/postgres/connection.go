// Package postgres is the SQL crowdfund store. It runs on PostgreSQL through
// lib/pq or pgx and on SQLite for single-node deployments and tests.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/yuzvak/crowdfund-service/internal/config"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

type Connection struct {
	db      *sql.DB
	dialect Dialect
}

func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	dialect, err := dialectOf(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen == 0 {
		maxOpen = 100
	}
	if maxIdle == 0 {
		maxIdle = 50
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &Connection{db: db, dialect: dialect}, nil
}

func NewConnectionFromDB(db *sql.DB, dialect Dialect) *Connection {
	return &Connection{db: db, dialect: dialect}
}

func dialectOf(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (c *Connection) Close() error {
	return c.db.Close()
}

func (c *Connection) GetDB() *sql.DB {
	return c.db
}

func (c *Connection) Dialect() Dialect {
	return c.dialect
}

// BeginTx opens a serializable transaction. SQLite transactions are always
// serializable and take the write lock up front through the DSN.
func (c *Connection) BeginTx(ctx context.Context) (*sql.Tx, error) {
	if c.dialect == DialectPostgres {
		return c.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	return c.db.BeginTx(ctx, nil)
}

// translate maps contention failures reported by the driver to ErrTransactionFailed.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == "40001" || pqErr.Code == "40P01") {
		return fmt.Errorf("%s: %w", pqErr.Message, domainErrors.ErrTransactionFailed)
	}

	var stateErr interface{ SQLState() string }
	if errors.As(err, &stateErr) {
		if code := stateErr.SQLState(); code == "40001" || code == "40P01" {
			return fmt.Errorf("%v: %w", err, domainErrors.ErrTransactionFailed)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%v: %w", err, domainErrors.ErrTransactionFailed)
	}

	return err
}
