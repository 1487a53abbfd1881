package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// SaveResult stores a processing result as the document's current
// payload, replacing any previous one.
func (s *Store) SaveResult(ctx context.Context, id string, res *doc.Result) error {
	if res == nil {
		return errors.New("store: nil result")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("store: marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (document_id, engine, payload) VALUES (?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET engine = excluded.engine, payload = excluded.payload`,
		id, res.Engine, string(payload))
	if err != nil {
		return fmt.Errorf("store: save result: %w", err)
	}
	return nil
}

// GetResult loads the stored result for a document.
func (s *Store) GetResult(ctx context.Context, id string) (*doc.Result, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM results WHERE document_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get result: %w", err)
	}
	var res doc.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("store: decode result: %w", err)
	}
	return &res, nil
}

// Correction records a manual text edit on a block.
type Correction struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	BlockID    string    `json:"block_id"`
	OldText    string    `json:"old_text"`
	NewText    string    `json:"new_text"`
	Applied    bool      `json:"applied"`
	CreatedAt  time.Time `json:"created_at"`
}

// CorrectBlock replaces a block's text in the stored result and records
// the edit. Corrected blocks are reclassified and marked as manual with
// full confidence. When the stored payload cannot be decoded the raw
// correction is still recorded, flagged as unapplied, so no user edit
// is ever lost.
func (s *Store) CorrectBlock(ctx context.Context, id, blockID, newText string) (*doc.Result, error) {
	res, err := s.GetResult(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Result row exists but is unreadable: keep the edit anyway.
		if _, rerr := s.db.ExecContext(ctx,
			`INSERT INTO corrections (document_id, block_id, old_text, new_text, applied) VALUES (?, ?, '', ?, 0)`,
			id, blockID, newText); rerr != nil {
			return nil, fmt.Errorf("store: record correction: %w", rerr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range res.Blocks {
		if res.Blocks[i].ID == blockID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("store: block %s: %w", blockID, ErrNotFound)
	}

	oldText := res.Blocks[idx].Text
	res.Blocks[idx].Text = newText
	res.Blocks[idx].Confidence = 1.0
	res.Blocks[idx].Source = "manual"
	res.Blocks[idx] = doc.ClassifyBlock(res.Blocks[idx])
	res.Stats = doc.ComputeStats(res.Blocks, len(res.Pages))
	res.Stats.DetectionCount = len(res.Detections)

	if err := s.SaveResult(ctx, id, res); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO corrections (document_id, block_id, old_text, new_text, applied) VALUES (?, ?, ?, ?, 1)`,
		id, blockID, oldText, newText); err != nil {
		return nil, fmt.Errorf("store: record correction: %w", err)
	}
	return res, nil
}

// ListCorrections returns the edit history for a document, oldest first.
func (s *Store) ListCorrections(ctx context.Context, id string) ([]Correction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, block_id, old_text, new_text, applied, created_at
		 FROM corrections WHERE document_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Correction
	for rows.Next() {
		var c Correction
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.BlockID, &c.OldText, &c.NewText, &c.Applied, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list corrections: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
