package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
)

// Event types
const (
	EventValidation  = "validation"
	EventFix         = "fix"
	EventSystemError = "system_error"
)

// Event statuses
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusWarning = "warning"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// topErrorsLogged caps how many validation errors go into event details
const topErrorsLogged = 5

// Event is one row of the validation log
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"event_type"`
	Status    string          `json:"status"`
	SubjectID string          `json:"subject_id,omitempty"`
	URL       string          `json:"url,omitempty"`
	Message   string          `json:"message,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats summarizes the log for dashboards
type Stats struct {
	Total   int `json:"total"`
	Invalid int `json:"invalid"`
	Fixes   int `json:"fixes"`
	Health  int `json:"health"`
}

// EventLog appends to and summarizes the validation_log table
type EventLog struct {
	db      *sql.DB
	timeNow func() time.Time
}

// NewEventLog creates an event log
func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db, timeNow: time.Now}
}

// LogValidation records a validation outcome. Status is invalid when the
// report has errors, warning when it only has warnings, valid otherwise.
func (l *EventLog) LogValidation(ctx context.Context, subjectID, url string, report jsonld.Report, types []string) error {
	status := StatusValid
	switch {
	case len(report.Errors) > 0:
		status = StatusInvalid
	case len(report.Warnings) > 0:
		status = StatusWarning
	}
	if types == nil {
		types = []string{}
	}
	details := map[string]any{
		"error_count":   len(report.Errors),
		"warning_count": len(report.Warnings),
		"errors":        report.TopErrors(topErrorsLogged),
		"schema_types":  types,
	}
	return l.append(ctx, EventValidation, status, subjectID, url, "", details)
}

// LogFix records a repair outcome
func (l *EventLog) LogFix(ctx context.Context, subjectID string, success bool, fixErr error) error {
	status := StatusSuccess
	var details map[string]any
	if !success {
		status = StatusFailed
		msg := ""
		if fixErr != nil {
			msg = fixErr.Error()
		}
		details = map[string]any{"error": msg}
	}
	return l.append(ctx, EventFix, status, subjectID, "", "", details)
}

// LogSystemError records an unexpected failure with free-form context
func (l *EventLog) LogSystemError(ctx context.Context, message string, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	details := map[string]any{"message": message, "context": fields}
	return l.append(ctx, EventSystemError, StatusError, "", "", message, details)
}

func (l *EventLog) append(ctx context.Context, eventType, status, subjectID, url, message string, details map[string]any) error {
	var raw sql.NullString
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return errors.Wrap(err, "encode event details")
		}
		raw = sql.NullString{String: string(data), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO validation_log (id, event_type, status, subject_id, url, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), eventType, status, subjectID, url, message, raw, l.timeNow().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to log %s event", eventType)
	}
	return nil
}

// Recent returns the newest events first
func (l *EventLog) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_type, status, subject_id, url, message, details, created_at
		FROM validation_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recent events")
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.Status, &e.SubjectID, &e.URL, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if details.Valid {
			e.Details = json.RawMessage(details.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Stats counts distinct validated subjects, how many of them have an
// invalid event, and successful fixes. A subject is its url when known.
// Health is the valid share as a percentage, 100 when nothing was validated.
func (l *EventLog) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := l.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT CASE WHEN event_type = 'validation'
				THEN CASE WHEN url != '' THEN url ELSE subject_id END END),
			COUNT(DISTINCT CASE WHEN event_type = 'validation' AND status = 'invalid'
				THEN CASE WHEN url != '' THEN url ELSE subject_id END END),
			COUNT(CASE WHEN event_type = 'fix' AND status = 'success' THEN 1 END)
		FROM validation_log`).Scan(&st.Total, &st.Invalid, &st.Fixes)
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to compute event stats")
	}

	st.Health = 100
	if st.Total > 0 {
		st.Health = int(math.Round(float64(st.Total-st.Invalid) / float64(st.Total) * 100))
	}
	return st, nil
}
