package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld/quality"
)

// ReviewStore is a quality.ReviewStore over the review_queue table.
// One row per subject; flagging again replaces the row.
type ReviewStore struct {
	db *sql.DB
}

var _ quality.ReviewStore = (*ReviewStore)(nil)

// NewReviewStore creates a review store
func NewReviewStore(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

func (s *ReviewStore) Put(ctx context.Context, e quality.ReviewEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_queue (subject_id, id, reason, confidence, data, status, flagged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			id = excluded.id,
			reason = excluded.reason,
			confidence = excluded.confidence,
			data = excluded.data,
			status = excluded.status,
			flagged_at = excluded.flagged_at`,
		e.SubjectID, e.ID, e.Reason, e.Confidence, string(e.Data), e.Status, e.FlaggedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to store review entry for %s", e.SubjectID)
	}
	return nil
}

func (s *ReviewStore) Get(ctx context.Context, subjectID string) (*quality.ReviewEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, reason, confidence, data, status, flagged_at
		FROM review_queue WHERE subject_id = ?`, subjectID)

	e, err := scanReviewEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("review entry %s", subjectID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load review entry %s", subjectID)
	}
	return e, nil
}

func (s *ReviewStore) Remove(ctx context.Context, subjectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM review_queue WHERE subject_id = ?`, subjectID)
	if err != nil {
		return errors.Wrapf(err, "failed to remove review entry %s", subjectID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("review entry %s", subjectID)
	}
	return nil
}

func (s *ReviewStore) List(ctx context.Context, status string) ([]quality.ReviewEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, reason, confidence, data, status, flagged_at
		FROM review_queue WHERE status = ? ORDER BY flagged_at, rowid`, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list review entries")
	}
	defer rows.Close()

	entries := []quality.ReviewEntry{}
	for rows.Next() {
		e, err := scanReviewEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan review entry")
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanReviewEntry(row rowScanner) (*quality.ReviewEntry, error) {
	var e quality.ReviewEntry
	var data string
	if err := row.Scan(&e.ID, &e.SubjectID, &e.Reason, &e.Confidence, &data, &e.Status, &e.FlaggedAt); err != nil {
		return nil, err
	}
	e.Data = json.RawMessage(data)
	return &e, nil
}
