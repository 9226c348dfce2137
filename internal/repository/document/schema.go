package document

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/domain/vector"
)

const baseSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    category         TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL,
    content          TEXT NOT NULL,
    summary          TEXT NOT NULL DEFAULT '',
    root_causes      TEXT NOT NULL DEFAULT '',
    resolution_steps TEXT NOT NULL DEFAULT '',
    tags             TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
`

// documentColumns is the select list matching scanDocument.
var documentColumns = []string{
	"id", "category", "title", "content", "summary",
	"root_causes", "resolution_steps", "tags", "created_at", "updated_at",
}

var documentSelect = strings.Join(documentColumns, ", ")

// embeddingColumn and dimColumn name the per-provider columns.
// Provider IDs are validated against domain.ProviderSpec.Validate before reaching SQL.
func embeddingColumn(id domain.ProviderID) string { return "embedding_" + string(id) }
func dimColumn(id domain.ProviderID) string       { return "embedding_" + string(id) + "_dim" }

// sqlConn is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// migrate creates the documents table and adds any missing provider columns.
func migrate(ctx context.Context, c sqlConn, order []domain.ProviderID) error {
	if _, err := c.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	existing, err := tableColumns(ctx, c, "main")
	if err != nil {
		return err
	}

	for _, id := range order {
		if !existing[embeddingColumn(id)] {
			q := fmt.Sprintf("ALTER TABLE documents ADD COLUMN %s BLOB", embeddingColumn(id))
			if _, err := c.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("add column %s: %w", embeddingColumn(id), err)
			}
		}
		if !existing[dimColumn(id)] {
			q := fmt.Sprintf("ALTER TABLE documents ADD COLUMN %s INTEGER", dimColumn(id))
			if _, err := c.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("add column %s: %w", dimColumn(id), err)
			}
		}
	}
	return nil
}

// tableColumns lists the columns of documents in the given attached schema.
func tableColumns(ctx context.Context, c sqlConn, schema string) (map[string]bool, error) {
	rows, err := c.QueryContext(ctx, fmt.Sprintf("PRAGMA %s.table_info(documents)", schema))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", schema, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return cols, nil
}

// checkDimensions counts rows whose embedding for spec disagrees with its fixed dimension.
func checkDimensions(ctx context.Context, c sqlConn, spec domain.ProviderSpec) (int, error) {
	q := fmt.Sprintf(
		`SELECT COUNT(*) FROM documents
		 WHERE %[1]s IS NOT NULL AND (%[2]s IS NULL OR %[2]s != ? OR length(%[1]s) != ?)`,
		embeddingColumn(spec.ID), dimColumn(spec.ID),
	)
	var n int
	if err := c.QueryRowContext(ctx, q, spec.Dimension, spec.Dimension*vector.BytesPerElement).Scan(&n); err != nil {
		return 0, fmt.Errorf("check %s dimensions: %w", spec.ID, err)
	}
	return n, nil
}
