// Package sqldb implements the sync repository on top of database/sql. Dialect-specific
// behaviour (placeholders, time encoding, sequences, error classification) is supplied
// by the postgres and sqlite packages.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"infopos/backend/internal/store"
)

type Dialect interface {
	// Rebind rewrites $n placeholders into the driver's syntax.
	Rebind(query string) string
	// TimeArg encodes an instant as a query argument.
	TimeArg(t time.Time) any
	// TxOptions returns the options used for push batches.
	TxOptions() *sql.TxOptions
	// AfterExplicitID realigns id generation after a row was inserted with a caller-chosen id.
	AfterExplicitID(ctx context.Context, q Querier, table string) error
	// IsRecordError reports whether err was caused by the row's own data.
	IsRecordError(err error) bool
}

type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Repository = (*DB)(nil)

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

func (s *DB) Close() error {
	return s.db.Close()
}

// Conn exposes the pool for bootstrap and tests.
func (s *DB) Conn() *sql.DB {
	return s.db
}

func (s *DB) RunBatch(ctx context.Context, fn func(tx store.BatchTx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions())
	if err != nil {
		return fmt.Errorf("%w: begin batch: %v", store.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&batchTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// RebindQuestion turns $n into ?n, which SQLite reads as an explicit parameter index.
func RebindQuestion(query string) string {
	return dollarParam.ReplaceAllString(query, "?$1")
}

// argList accumulates query arguments and hands out $n placeholders.
type argList struct {
	vals []any
}

func (a *argList) add(v any) string {
	a.vals = append(a.vals, v)
	return "$" + strconv.Itoa(len(a.vals))
}

func (a *argList) in(ids []int64) string {
	ph := make([]string, 0, len(ids))
	for _, id := range ids {
		ph = append(ph, a.add(id))
	}
	return strings.Join(ph, ", ")
}

const inChunk = 500

func chunkIDs(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > inChunk {
		out = append(out, ids[:inChunk])
		ids = ids[inChunk:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// dbTime scans timestamps stored natively or as text.
type dbTime struct {
	t *time.Time
}

var textTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.t = time.Time{}
		return nil
	case time.Time:
		*d.t = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (d dbTime) parse(s string) error {
	for _, layout := range textTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*d.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
