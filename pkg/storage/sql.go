package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Dialect selects placeholder style for the relational adapter.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLAdapter stores one row per version record. Activation runs inside a
// single transaction: demote the old active, promote the new one.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates
// the schema.
func OpenSQLite(path string) (*SQLAdapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	return NewSQLAdapter(db, DialectSQLite)
}

// NewSQLAdapter wraps an existing database handle and migrates the
// schema.
func NewSQLAdapter(db *sql.DB, dialect Dialect) (*SQLAdapter, error) {
	a := &SQLAdapter{db: db, dialect: dialect}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLAdapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS rule_versions (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		changelog TEXT NOT NULL DEFAULT '',
		parent_version_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_rule_versions_rule_id ON rule_versions(rule_id, version_number);`
	_, err := a.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $N for postgres.
func (a *SQLAdapter) rebind(query string) string {
	if a.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const recordColumns = `id, rule_id, version_number, content, content_hash, created_by, created_at, status, changelog, parent_version_id`

func (a *SQLAdapter) Save(ctx context.Context, record *contracts.VersionRecord) error {
	query := a.rebind(`INSERT INTO rule_versions (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := a.db.ExecContext(ctx, query,
		record.ID, record.RuleID, record.VersionNumber, string(record.Content),
		record.ContentHash, record.CreatedBy, record.CreatedAt,
		string(record.Status), record.Changelog, record.ParentVersionID,
	)
	if err != nil {
		return fmt.Errorf("storage: save version: %w", err)
	}
	return nil
}

func (a *SQLAdapter) Load(ctx context.Context, id string) (*contracts.VersionRecord, error) {
	query := a.rebind(`SELECT ` + recordColumns + ` FROM rule_versions WHERE id = ?`)
	return a.scanOne(a.db.QueryRowContext(ctx, query, id))
}

// List returns a rule's versions oldest first. A positive limit keeps
// the newest N, matching the file adapter.
func (a *SQLAdapter) List(ctx context.Context, ruleID string, limit int) ([]*contracts.VersionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM rule_versions WHERE rule_id = ? ORDER BY version_number ASC`
	args := []any{ruleID}
	if limit > 0 {
		query = `SELECT ` + recordColumns + ` FROM rule_versions WHERE rule_id = ? ORDER BY version_number DESC LIMIT ?`
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, a.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*contracts.VersionRecord
	for rows.Next() {
		record, err := a.scanRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list versions: %w", err)
	}
	if limit > 0 {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return records, nil
}

func (a *SQLAdapter) FindActive(ctx context.Context, ruleID string) (*contracts.VersionRecord, error) {
	query := a.rebind(`SELECT ` + recordColumns + ` FROM rule_versions WHERE rule_id = ? AND status = 'active' ORDER BY version_number DESC LIMIT 1`)
	return a.scanOne(a.db.QueryRowContext(ctx, query, ruleID))
}

func (a *SQLAdapter) CompareAndSetActive(ctx context.Context, ruleID, newID string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin activation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	demote := a.rebind(`UPDATE rule_versions SET status = 'archived' WHERE rule_id = ? AND status = 'active' AND id <> ?`)
	if _, err := tx.ExecContext(ctx, demote, ruleID, newID); err != nil {
		return fmt.Errorf("storage: demote active: %w", err)
	}

	promote := a.rebind(`UPDATE rule_versions SET status = 'active' WHERE rule_id = ? AND id = ?`)
	res, err := tx.ExecContext(ctx, promote, ruleID, newID)
	if err != nil {
		return fmt.Errorf("storage: promote active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: promote active: %w", err)
	}
	if affected == 0 {
		return contracts.ErrVersionNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit activation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (a *SQLAdapter) scanOne(row *sql.Row) (*contracts.VersionRecord, error) {
	record, err := a.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrVersionNotFound
	}
	return record, err
}

func (a *SQLAdapter) scanRow(row rowScanner) (*contracts.VersionRecord, error) {
	var record contracts.VersionRecord
	var content, status string
	err := row.Scan(
		&record.ID, &record.RuleID, &record.VersionNumber, &content,
		&record.ContentHash, &record.CreatedBy, &record.CreatedAt,
		&status, &record.Changelog, &record.ParentVersionID,
	)
	if err != nil {
		return nil, err
	}
	record.Content = []byte(content)
	record.Status = contracts.VersionStatus(status)
	return &record, nil
}
