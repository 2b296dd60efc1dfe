package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a SQLite database holding the relationship graph.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the graph database at the given path and applies the
// schema. Creation is idempotent - tables that already exist are left alone,
// so Open may be called repeatedly against the same file.
//
// The connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement (required for cascade deletes)
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY on concurrent imports.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sqlx handle. Prefer Store methods.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back on any
// error or panic and committed otherwise. One import file = one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// StructuralError reports a database missing required tables or columns.
// Batch tools treat it as fatal for the run.
type StructuralError struct {
	Missing []string
}

func (e *StructuralError) Error() string {
	return "database structure invalid, missing: " + strings.Join(e.Missing, ", ")
}

// requiredColumns is the minimal column set each table must carry for the
// pipelines to operate.
var requiredColumns = map[string][]string{
	"documents":          {"document_id", "doc_identifier", "name", "type"},
	"elements":           {"element_id", "document_id", "element_identifier", "title", "text"},
	"relationship_types": {"type_id", "relationship_identifier"},
	"relationships":      {"source_id", "dest_id", "prov_doc_id", "relationship_type"},
}

// ValidateStructure verifies that all required tables and columns exist.
// Returns a *StructuralError naming every missing table or column.
func (s *Store) ValidateStructure(ctx context.Context) error {
	var missing []string

	for _, table := range []string{"documents", "elements", "relationship_types", "relationships"} {
		var name string
		err := s.db.GetContext(ctx, &name,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err != nil {
			missing = append(missing, "table "+table)
			continue
		}

		cols, err := s.tableColumns(ctx, table)
		if err != nil {
			return fmt.Errorf("inspect table %s: %w", table, err)
		}
		for _, want := range requiredColumns[table] {
			if !cols[want] {
				missing = append(missing, table+"."+want)
			}
		}
	}

	if len(missing) > 0 {
		return &StructuralError{Missing: missing}
	}
	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
