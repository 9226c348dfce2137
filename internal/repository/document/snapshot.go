package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// loadSnapshot copies the documents table of the SQLite file at path into a fresh
// in-memory database. Provider columns the snapshot lacks are loaded as NULL.
func (s *Store) loadSnapshot(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	mem, err := openDB(":memory:")
	if err != nil {
		return nil, err
	}
	if err := s.copySnapshot(ctx, mem, path); err != nil {
		_ = mem.Close()
		return nil, err
	}
	return mem, nil
}

func (s *Store) copySnapshot(ctx context.Context, mem *sql.DB, path string) error {
	conn, err := mem.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if err := migrate(ctx, conn, s.order); err != nil {
		return fmt.Errorf("create in-memory schema: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS snapshot", path); err != nil {
		return fmt.Errorf("attach snapshot %s: %w", path, err)
	}
	copyErr := s.copyDocuments(ctx, conn)
	if _, err := conn.ExecContext(ctx, "DETACH DATABASE snapshot"); err != nil && copyErr == nil {
		return fmt.Errorf("detach snapshot: %w", err)
	}
	if copyErr != nil {
		return fmt.Errorf("load snapshot %s: %w", path, copyErr)
	}

	for _, id := range s.order {
		bad, err := checkDimensions(ctx, conn, s.specs[id])
		if err != nil {
			return err
		}
		if bad > 0 {
			return fmt.Errorf("%w: snapshot %s has %d %s embeddings not of dimension %d",
				domain.ErrDataIntegrity, path, bad, id, s.specs[id].Dimension)
		}
	}
	return nil
}

func (s *Store) copyDocuments(ctx context.Context, conn *sql.Conn) error {
	var tables int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshot.sqlite_master WHERE type = 'table' AND name = 'documents'`,
	).Scan(&tables)
	if err != nil {
		return fmt.Errorf("inspect snapshot: %w", err)
	}
	if tables == 0 {
		return fmt.Errorf("%w: snapshot has no documents table", domain.ErrDataIntegrity)
	}

	available, err := tableColumns(ctx, conn, "snapshot")
	if err != nil {
		return err
	}

	targets := append([]string(nil), documentColumns...)
	sources := make([]string, 0, len(targets)+2*len(s.order))
	for _, col := range documentColumns {
		if !available[col] {
			return fmt.Errorf("%w: snapshot documents table lacks column %q", domain.ErrDataIntegrity, col)
		}
		sources = append(sources, col)
	}
	for _, id := range s.order {
		for _, col := range []string{embeddingColumn(id), dimColumn(id)} {
			targets = append(targets, col)
			if available[col] {
				sources = append(sources, col)
			} else {
				sources = append(sources, "NULL")
			}
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO main.documents (%s) SELECT %s FROM snapshot.documents",
		strings.Join(targets, ", "), strings.Join(sources, ", "))
	if _, err := tx.ExecContext(ctx, q); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("copy documents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
