package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/quality"
)

// SchemaRecord is the stored structured data for one content item
type SchemaRecord struct {
	ContentID     string                `json:"content_id"`
	Data          json.RawMessage       `json:"data"`
	Report        *jsonld.Report        `json:"report,omitempty"`
	Confidence    quality.ConfidenceMap `json:"confidence,omitempty"`
	Overall       float64               `json:"overall"`
	State         quality.State         `json:"state"`
	PendingReview bool                  `json:"pending_review"`
	ReviewReason  string                `json:"review_reason,omitempty"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// SchemaStore reads and writes content_schema rows
type SchemaStore struct {
	db      *sql.DB
	timeNow func() time.Time
}

// NewSchemaStore creates a schema store
func NewSchemaStore(db *sql.DB) *SchemaStore {
	return &SchemaStore{db: db, timeNow: time.Now}
}

// Save inserts or replaces the record and stamps UpdatedAt
func (s *SchemaStore) Save(ctx context.Context, rec *SchemaRecord) error {
	if rec.ContentID == "" {
		return errors.NewInvalidRequestError("schema record needs a content id")
	}
	if len(rec.Data) == 0 {
		rec.Data = json.RawMessage("null")
	}

	report, err := marshalNullable(rec.Report)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	confidence, err := marshalNullable(rec.Confidence)
	if err != nil {
		return errors.Wrap(err, "encode confidence")
	}

	rec.UpdatedAt = s.timeNow().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_schema (
			content_id, data, report, confidence, overall, state,
			pending_review, review_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			data = excluded.data,
			report = excluded.report,
			confidence = excluded.confidence,
			overall = excluded.overall,
			state = excluded.state,
			pending_review = excluded.pending_review,
			review_reason = excluded.review_reason,
			updated_at = excluded.updated_at`,
		rec.ContentID, string(rec.Data), report, confidence, rec.Overall, string(rec.State),
		rec.PendingReview, rec.ReviewReason, rec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save schema for %s", rec.ContentID)
	}
	return nil
}

// Get returns the record for contentID
func (s *SchemaStore) Get(ctx context.Context, contentID string) (*SchemaRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_id, data, report, confidence, overall, state,
		       pending_review, review_reason, updated_at
		FROM content_schema WHERE content_id = ?`, contentID)

	rec, err := scanSchemaRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("schema for %s", contentID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load schema for %s", contentID)
	}
	return rec, nil
}

// SetState moves the record to state and sets or clears the review flag
func (s *SchemaStore) SetState(ctx context.Context, contentID string, state quality.State, pendingReview bool, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_schema
		SET state = ?, pending_review = ?, review_reason = ?, updated_at = ?
		WHERE content_id = ?`,
		string(state), pendingReview, reason, s.timeNow().UTC(), contentID)
	if err != nil {
		return errors.Wrapf(err, "failed to update state for %s", contentID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("schema for %s", contentID)
	}
	return nil
}

// ListByState returns content ids in state, oldest update first
func (s *SchemaStore) ListByState(ctx context.Context, state quality.State) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id FROM content_schema WHERE state = ? ORDER BY updated_at, content_id`, string(state))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schema records")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan content id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchemaRecord(row rowScanner) (*SchemaRecord, error) {
	var (
		rec        SchemaRecord
		data       string
		report     sql.NullString
		confidence sql.NullString
		overall    sql.NullFloat64
		state      string
		reason     sql.NullString
	)
	if err := row.Scan(&rec.ContentID, &data, &report, &confidence, &overall, &state,
		&rec.PendingReview, &reason, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	rec.Data = json.RawMessage(data)
	rec.Overall = overall.Float64
	rec.State = quality.State(state)
	rec.ReviewReason = reason.String
	if report.Valid && report.String != "" {
		rec.Report = &jsonld.Report{}
		if err := json.Unmarshal([]byte(report.String), rec.Report); err != nil {
			return nil, errors.Wrap(err, "decode stored report")
		}
	}
	if confidence.Valid && confidence.String != "" {
		if err := json.Unmarshal([]byte(confidence.String), &rec.Confidence); err != nil {
			return nil, errors.Wrap(err, "decode stored confidence")
		}
	}
	return &rec, nil
}

// marshalNullable encodes v, mapping nil pointers and maps to SQL NULL
func marshalNullable(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *jsonld.Report:
		if t == nil {
			return sql.NullString{}, nil
		}
	case quality.ConfidenceMap:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
