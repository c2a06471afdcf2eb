package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/ldschema/errors"
)

// DefaultHistoryLimit is how many versions are kept per content item
const DefaultHistoryLimit = 10

// Version is one saved snapshot of a content item's structured data
type Version struct {
	ID        string          `json:"id"`
	ContentID string          `json:"content_id"`
	Data      json.RawMessage `json:"data"`
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Change is an old/new pair for a changed key
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff lists top-level keys added, removed or changed from version a to b
type Diff struct {
	Added   map[string]any    `json:"added"`
	Removed map[string]any    `json:"removed"`
	Changed map[string]Change `json:"changed"`
}

// HistoryStore keeps the last limit versions per content item
type HistoryStore struct {
	db      *sql.DB
	limit   int
	timeNow func() time.Time
}

// NewHistoryStore creates a history store. limit < 1 means DefaultHistoryLimit.
func NewHistoryStore(db *sql.DB, limit int) *HistoryStore {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	return &HistoryStore{db: db, limit: limit, timeNow: time.Now}
}

// Save appends a version and trims the oldest beyond the limit
func (h *HistoryStore) Save(ctx context.Context, contentID string, data json.RawMessage, actor Actor) (*Version, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	v := &Version{
		ID:        uuid.NewString(),
		ContentID: contentID,
		Data:      data,
		UserID:    actor.ID,
		UserName:  actor.Name,
		CreatedAt: h.timeNow().UTC(),
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_history (id, content_id, data, user_id, user_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ContentID, string(v.Data), v.UserID, v.UserName, v.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save version for %s", contentID)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM schema_history
		WHERE content_id = ? AND seq NOT IN (
			SELECT seq FROM schema_history WHERE content_id = ? ORDER BY seq DESC LIMIT ?
		)`, contentID, contentID, h.limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to trim history for %s", contentID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit version")
	}
	return v, nil
}

// List returns versions oldest first; index 0 is the oldest kept version
func (h *HistoryStore) List(ctx context.Context, contentID string) ([]Version, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, content_id, data, user_id, user_name, created_at
		FROM schema_history WHERE content_id = ? ORDER BY seq ASC`, contentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list history for %s", contentID)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		var v Version
		var data string
		if err := rows.Scan(&v.ID, &v.ContentID, &data, &v.UserID, &v.UserName, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan version")
		}
		v.Data = json.RawMessage(data)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Get returns the version at index
func (h *HistoryStore) Get(ctx context.Context, contentID string, index int) (*Version, error) {
	versions, err := h.List(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(versions) {
		return nil, errors.NewInvalidRequestError("history index %d out of range for %s (%d versions)", index, contentID, len(versions))
	}
	return &versions[index], nil
}

// Restore returns the version at index after saving current as a new
// version, so the restore itself can be undone. The caller makes the
// returned data current.
func (h *HistoryStore) Restore(ctx context.Context, contentID string, index int, current json.RawMessage, actor Actor) (*Version, error) {
	v, err := h.Get(ctx, contentID, index)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 {
		if _, err := h.Save(ctx, contentID, current, actor); err != nil {
			return nil, errors.Wrap(err, "save current before restore")
		}
	}
	return v, nil
}

// Compare diffs the top-level keys of versions a and b
func (h *HistoryStore) Compare(ctx context.Context, contentID string, a, b int) (*Diff, error) {
	va, err := h.Get(ctx, contentID, a)
	if err != nil {
		return nil, err
	}
	vb, err := h.Get(ctx, contentID, b)
	if err != nil {
		return nil, err
	}
	return DiffData(va.Data, vb.Data)
}

// DiffData compares two JSON objects key by key. Non-object data compares
// as an empty object.
func DiffData(a, b json.RawMessage) (*Diff, error) {
	ma, err := decodeObject(a)
	if err != nil {
		return nil, err
	}
	mb, err := decodeObject(b)
	if err != nil {
		return nil, err
	}

	d := &Diff{Added: map[string]any{}, Removed: map[string]any{}, Changed: map[string]Change{}}
	for k, nv := range mb {
		ov, ok := ma[k]
		switch {
		case !ok:
			d.Added[k] = nv
		case !reflect.DeepEqual(ov, nv):
			d.Changed[k] = Change{Old: ov, New: nv}
		}
	}
	for k, ov := range ma {
		if _, ok := mb[k]; !ok {
			d.Removed[k] = ov
		}
	}
	return d, nil
}

func decodeObject(data json.RawMessage) (map[string]any, error) {
	var v any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "decode version data")
		}
	}
	m, _ := v.(map[string]any)
	return m, nil
}
