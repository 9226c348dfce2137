package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/kailas-cloud/failrag/internal/domain"
	"github.com/kailas-cloud/failrag/internal/domain/vector"
)

// Store holds documents and their per-provider embeddings in SQLite.
//
// A single RWMutex guards the connection: reads share it, writes own it exclusively,
// and every write runs in one transaction.
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	readOnly bool

	specs  map[domain.ProviderID]domain.ProviderSpec
	order  []domain.ProviderID
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an unopened store for the given providers.
// With no specs only the base document columns are loaded and every provider lookup fails
// with domain.ErrUnknownProvider.
// Call InitializeReadOnly or InitializeWritable before use.
func New(specs []domain.ProviderSpec, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		specs:  make(map[domain.ProviderID]domain.ProviderSpec, len(specs)),
		now:    time.Now,
		logger: logger,
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.specs[spec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate provider %q", domain.ErrInvalidArgument, spec.ID)
		}
		s.specs[spec.ID] = spec
		s.order = append(s.order, spec.ID)
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// InitializeReadOnly loads the snapshot at path wholesale into an in-memory database.
// Afterwards write operations fail with domain.ErrReadOnlyStore.
func (s *Store) InitializeReadOnly(ctx context.Context, path string) error {
	mem, err := s.loadSnapshot(ctx, path)
	if err != nil {
		return err
	}

	_ = s.swap(mem, path, true, false)

	n, _ := s.Count(ctx)
	s.logger.Info("Loaded document snapshot", zap.String("path", path), zap.Int("documents", n))
	return nil
}

// InitializeWritable opens or creates a file-backed store at path.
func (s *Store) InitializeWritable(ctx context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("configure sqlite (%s): %w", pragma, err)
		}
	}
	if err := migrate(ctx, db, s.order); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate %s: %w", path, err)
	}

	for _, id := range s.order {
		bad, err := checkDimensions(ctx, db, s.specs[id])
		if err != nil {
			_ = db.Close()
			return err
		}
		if bad > 0 {
			s.logger.Warn("Stored embeddings do not match provider dimension",
				zap.String("provider", string(id)),
				zap.Int("dimension", s.specs[id].Dimension),
				zap.Int("documents", bad),
			)
		}
	}

	_ = s.swap(db, path, false, false)
	return nil
}

// Reload re-reads the snapshot the store was initialized from. The current corpus
// stays in place if loading fails.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.RLock()
	path, readOnly, open := s.path, s.readOnly, s.db != nil
	s.mu.RUnlock()

	if !open {
		return domain.ErrStoreClosed
	}
	if !readOnly {
		return errors.New("reload: store was not loaded from a snapshot")
	}

	mem, err := s.loadSnapshot(ctx, path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := s.swap(mem, path, true, true); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// Path returns the file the store was initialized from.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Insert adds a document with optional embeddings and returns its id.
func (s *Store) Insert(
	ctx context.Context, entry domain.DocumentEntry, embeddings map[domain.ProviderID][]float32,
) (int64, error) {
	if strings.TrimSpace(entry.Title) == "" {
		return 0, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(entry.Content) == "" {
		return 0, fmt.Errorf("%w: content is required", domain.ErrInvalidArgument)
	}

	for id := range embeddings {
		if _, ok := s.specs[id]; !ok {
			return 0, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, id)
		}
	}

	now := s.now().UnixMilli()
	cols := []string{
		"category", "title", "content", "summary",
		"root_causes", "resolution_steps", "tags", "created_at", "updated_at",
	}
	args := []any{
		entry.Category, entry.Title, entry.Content, entry.Summary,
		entry.RootCauses, entry.ResolutionSteps, entry.Tags, now, now,
	}

	for _, id := range s.order {
		vec, ok := embeddings[id]
		if !ok || len(vec) == 0 {
			continue
		}
		if err := s.checkVector(id, vec); err != nil {
			return 0, err
		}
		cols = append(cols, embeddingColumn(id), dimColumn(id))
		args = append(args, vector.Encode(vec), len(vec))
	}
	q := fmt.Sprintf("INSERT INTO documents (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	var newID int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		newID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	return newID, err
}

// UpdateEmbedding replaces one provider's embedding for an existing document.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, provider domain.ProviderID, vec []float32) error {
	if err := s.checkVector(provider, vec); err != nil {
		return err
	}

	q := fmt.Sprintf("UPDATE documents SET %s = ?, %s = ?, updated_at = ? WHERE id = ?",
		embeddingColumn(provider), dimColumn(provider))

	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, vector.Encode(vec), len(vec), s.now().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("update %s embedding: %w", provider, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
		}
		return nil
	})
}

// Delete removes a document row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
		}
		return nil
	})
}

// ClearAll removes every document.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
			return fmt.Errorf("clear documents: %w", err)
		}
		return nil
	})
}

// ScanCandidates returns every document that has an embedding for provider, ordered by id.
func (s *Store) ScanCandidates(ctx context.Context, provider domain.ProviderID) ([]domain.Candidate, error) {
	spec, ok := s.specs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}

	q := fmt.Sprintf("SELECT %s, %s, %s FROM documents WHERE %s IS NOT NULL ORDER BY id",
		documentSelect, embeddingColumn(provider), dimColumn(provider), embeddingColumn(provider))

	var out []domain.Candidate
	err := s.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("scan %s candidates: %w", provider, err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				raw []byte
				dim sql.NullInt64
			)
			doc, err := scanDocument(rows, &raw, &dim)
			if err != nil {
				return err
			}
			vec, err := vector.Decode(raw)
			if err != nil {
				return fmt.Errorf("%w: document %d: %w", domain.ErrDataIntegrity, doc.ID, err)
			}
			if !dim.Valid || int(dim.Int64) != spec.Dimension || len(vec) != spec.Dimension {
				return fmt.Errorf("%w: document %d has %s embedding of dimension %d (declared %d), want %d",
					domain.ErrDataIntegrity, doc.ID, provider, len(vec), dim.Int64, spec.Dimension)
			}
			out = append(out, domain.Candidate{Document: doc, Embedding: vec})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate %s candidates: %w", provider, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MissingEmbeddings returns documents without an embedding for provider, ordered by id.
func (s *Store) MissingEmbeddings(ctx context.Context, provider domain.ProviderID) ([]domain.DocumentEntry, error) {
	if _, ok := s.specs[provider]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}

	q := fmt.Sprintf("SELECT %s FROM documents WHERE %s IS NULL ORDER BY id",
		documentSelect, embeddingColumn(provider))

	var out []domain.DocumentEntry
	err := s.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("list documents missing %s: %w", provider, err)
		}
		defer rows.Close()

		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate documents: %w", err)
		}
		return nil
	})
	return out, err
}

// Get returns a document by id.
func (s *Store) Get(ctx context.Context, id int64) (domain.DocumentEntry, error) {
	var doc domain.DocumentEntry
	err := s.read(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, "SELECT "+documentSelect+" FROM documents WHERE id = ?", id)
		var err error
		doc, err = scanDocument(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
		}
		return err
	})
	return doc, err
}

// CountWithEmbeddings returns how many documents have an embedding for provider.
func (s *Store) CountWithEmbeddings(ctx context.Context, provider domain.ProviderID) (int, error) {
	if _, ok := s.specs[provider]; !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}
	return s.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM documents WHERE %s IS NOT NULL", embeddingColumn(provider)))
}

// Count returns the number of documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM documents")
}

// Ping checks that the store is open and the connection answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.read(func(db *sql.DB) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return nil
	})
}

// Close releases the connection. A writable store folds its WAL back into the main file first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if !s.readOnly {
		if _, err := s.db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
			s.logger.Warn("Failed to checkpoint WAL", zap.String("path", s.path), zap.Error(err))
		}
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (s *Store) count(ctx context.Context, q string) (int, error) {
	var n int
	err := s.read(func(db *sql.DB) error {
		if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return fmt.Errorf("count documents: %w", err)
		}
		return nil
	})
	return n, err
}

func (s *Store) checkVector(provider domain.ProviderID, vec []float32) error {
	spec, ok := s.specs[provider]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}
	if len(vec) != spec.Dimension {
		return fmt.Errorf("%w: %s expects %d, got %d",
			domain.ErrVectorDimMismatch, provider, spec.Dimension, len(vec))
	}
	return nil
}

// read runs fn under the shared lock.
func (s *Store) read(fn func(db *sql.DB) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return domain.ErrStoreClosed
	}
	return fn(s.db)
}

// write runs fn in a transaction under the exclusive lock.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return domain.ErrStoreClosed
	}
	if s.readOnly {
		return domain.ErrReadOnlyStore
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// swap installs db as the active connection and closes the previous one.
// swap installs db as the live connection and closes the previous one.
// With requireOpen set, a store closed in the meantime keeps no connection: db is closed instead.
func (s *Store) swap(db *sql.DB, path string, readOnly, requireOpen bool) error {
	s.mu.Lock()
	if requireOpen && s.db == nil {
		s.mu.Unlock()
		_ = db.Close()
		return domain.ErrStoreClosed
	}
	old := s.db
	s.db, s.path, s.readOnly = db, path, readOnly
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("Failed to close previous connection", zap.Error(err))
		}
	}
	return nil
}

// openDB opens a SQLite database pinned to one connection, which also keeps
// an in-memory database alive for the lifetime of the pool.
func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument reads the documentColumns prefix of a row; extra receives trailing columns.
func scanDocument(r rowScanner, extra ...any) (domain.DocumentEntry, error) {
	var (
		doc                  domain.DocumentEntry
		createdMs, updatedMs int64
	)
	dest := []any{
		&doc.ID, &doc.Category, &doc.Title, &doc.Content, &doc.Summary,
		&doc.RootCauses, &doc.ResolutionSteps, &doc.Tags, &createdMs, &updatedMs,
	}
	dest = append(dest, extra...)
	if err := r.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("scan document: %w", err)
	}
	doc.CreatedAt = time.UnixMilli(createdMs).UTC()
	doc.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return doc, nil
}
