package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Document processing lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when a document or result does not exist.
var ErrNotFound = errors.New("not found")

// Document is an uploaded file and its processing state.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateDocument stores an uploaded file and returns its new id.
func (s *Store) CreateDocument(ctx context.Context, filename, mimeType string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", errors.New("store: empty document")
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, mime_type, content) VALUES (?, ?, ?, ?)`,
		id, filename, mimeType, content)
	if err != nil {
		return "", fmt.Errorf("store: create document: %w", err)
	}
	return id, nil
}

// GetDocument returns document metadata without the file content.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, mime_type, length(content), status, error, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	var d Document
	err := row.Scan(&d.ID, &d.Filename, &d.MIMEType, &d.Size, &d.Status, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	return &d, nil
}

// GetContent returns the stored file bytes.
func (s *Store) GetContent(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get content: %w", err)
	}
	return content, nil
}

// ListDocuments returns document metadata ordered newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, mime_type, length(content), status, error, created_at, updated_at
		 FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.MIMEType, &d.Size, &d.Status, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list documents: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetStatus updates the processing state. errMsg is recorded for
// StatusFailed and cleared otherwise.
func (s *Store) SetStatus(ctx context.Context, id, status, errMsg string) error {
	if status != StatusFailed {
		errMsg = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document and its dependent rows.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
