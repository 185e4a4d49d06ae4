package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenPostgres opens a Postgres-backed adapter. Activation relies on the
// transactional UPDATE pair in CompareAndSetActive, which Postgres runs
// with full serializability per rule id.
func OpenPostgres(dsn string) (*SQLAdapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	return NewSQLAdapter(db, DialectPostgres)
}
