package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveDocument inserts doc or replaces the row with the same source path.
func (s *Store) SaveDocument(doc Document) error {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, source_path, title, kind, content_hash, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			id = excluded.id, title = excluded.title, kind = excluded.kind,
			content_hash = excluded.content_hash, chunk_count = excluded.chunk_count,
			created_at = excluded.created_at`,
		doc.ID, doc.SourcePath, doc.Title, doc.Kind, doc.ContentHash, doc.ChunkCount,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(`
		SELECT id, source_path, title, kind, content_hash, chunk_count, created_at
		FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// GetDocumentByPath looks a document up by its source file path.
func (s *Store) GetDocumentByPath(path string) (Document, error) {
	row := s.db.QueryRow(`
		SELECT id, source_path, title, kind, content_hash, chunk_count, created_at
		FROM documents WHERE source_path = ?`, path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// DeleteDocument removes a document row. Its chunks are removed separately
// through the vector store.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns documents ordered by source path.
func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, source_path, title, kind, content_hash, chunk_count, created_at
		FROM documents ORDER BY source_path ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var d Document
	var createdAt string
	if err := r.Scan(&d.ID, &d.SourcePath, &d.Title, &d.Kind, &d.ContentHash, &d.ChunkCount, &createdAt); err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// Reset removes every document, chunk and metadata entry so the knowledge
// base can be rebuilt from scratch.
func (s *Store) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning reset: %w", err)
	}
	for _, table := range []string{"context_vectors", "documents", "kb_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			tx.Rollback()
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// --- Metadata ---

func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kb_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kb_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Stats counts documents and chunks and reads the build metadata.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&st.Documents); err != nil {
		return Stats{}, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM context_vectors").Scan(&st.Chunks); err != nil {
		return Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	if v, err := s.GetMeta(MetaEmbedModel); err == nil {
		st.EmbedModel = v
	} else if !errors.Is(err, ErrNotFound) {
		return Stats{}, err
	}
	if v, err := s.GetMeta(MetaBuiltAt); err == nil {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			st.BuiltAt = t
		}
	} else if !errors.Is(err, ErrNotFound) {
		return Stats{}, err
	}
	return st, nil
}
