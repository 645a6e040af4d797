package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"infopos/backend/internal/store/sqldb"
)

type Store struct {
	*sqldb.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{DB: sqldb.New(db, Dialect{})}, nil
}

// Dialect adapts the shared SQL engine to PostgreSQL.
type Dialect struct{}

func (Dialect) Rebind(query string) string { return query }

func (Dialect) TimeArg(t time.Time) any { return t.UTC() }

func (Dialect) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

// AfterExplicitID moves the serial sequence past ids chosen by clients so later
// server-generated ids never collide with them.
func (Dialect) AfterExplicitID(ctx context.Context, q sqldb.Querier, table string) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`, table))
	return err
}

// IsRecordError treats integrity (class 23) and data (class 22) violations as caused
// by the record being written.
func (Dialect) IsRecordError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && (pgErr.Code[:2] == "23" || pgErr.Code[:2] == "22")
	}
	return false
}
