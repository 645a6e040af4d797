// Package sqlite is the embedded single-terminal store. It opens a local database file,
// creates the sync tables when missing and serves the shared SQL engine.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"infopos/backend/internal/store/sqldb"
)

//go:embed schema.sql
var schemaSQL string

// TimeLayout is fixed-width so that text comparison orders instants correctly.
const TimeLayout = "2006-01-02 15:04:05.000000"

type Store struct {
	*sqldb.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?" + url.Values{
		"_pragma": []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"},
	}.Encode()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; savepoints and the batch transaction must share a connection anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &Store{DB: sqldb.New(db, Dialect{})}, nil
}

// Dialect adapts the shared SQL engine to SQLite.
type Dialect struct{}

func (Dialect) Rebind(query string) string { return sqldb.RebindQuestion(query) }

func (Dialect) TimeArg(t time.Time) any { return t.UTC().Format(TimeLayout) }

func (Dialect) TxOptions() *sql.TxOptions { return nil }

// AfterExplicitID is a no-op: INTEGER PRIMARY KEY allocates past the largest rowid.
func (Dialect) AfterExplicitID(context.Context, sqldb.Querier, string) error { return nil }

func (Dialect) IsRecordError(err error) bool {
	return errors.Is(err, sqlite3.CONSTRAINT) || errors.Is(err, sqlite3.MISMATCH) || errors.Is(err, sqlite3.TOOBIG)
}
