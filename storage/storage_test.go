package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ldschema/db"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/quality"
)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "storage.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestSchemaStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSchemaStore(setupTestDB(t))

	report := jsonld.NewReport()
	report.AddWarning("Organization", "missing recommended field logo")
	rec := &SchemaRecord{
		ContentID:  "post-42",
		Data:       json.RawMessage(`{"@type":"Organization","name":"Acme"}`),
		Report:     report,
		Confidence: quality.ConfidenceMap{"name": 1.0},
		Overall:    1.0,
		State:      quality.StateValidated,
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "post-42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"@type":"Organization","name":"Acme"}`, string(got.Data))
	require.NotNil(t, got.Report)
	assert.True(t, got.Report.Valid)
	assert.Len(t, got.Report.Warnings, 1)
	assert.Equal(t, 1.0, got.Confidence["name"])
	assert.Equal(t, quality.StateValidated, got.State)
	assert.False(t, got.PendingReview)

	// Upsert replaces
	rec.Data = json.RawMessage(`{"@type":"Organization","name":"Acme Corp"}`)
	rec.Report = nil
	rec.Confidence = nil
	require.NoError(t, store.Save(ctx, rec))

	got, err = store.Get(ctx, "post-42")
	require.NoError(t, err)
	assert.Contains(t, string(got.Data), "Acme Corp")
	assert.Nil(t, got.Report)
	assert.Nil(t, got.Confidence)
}

func TestSchemaStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewSchemaStore(setupTestDB(t))

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))

	err = store.SetState(ctx, "missing", quality.StatePublished, false, "")
	assert.True(t, errors.IsNotFoundError(err))

	err = store.Save(ctx, &SchemaRecord{})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestSchemaStore_SetStateAndList(t *testing.T) {
	ctx := context.Background()
	store := NewSchemaStore(setupTestDB(t))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, &SchemaRecord{
			ContentID: id,
			Data:      json.RawMessage(`{}`),
			State:     quality.StateGenerated,
		}))
	}
	require.NoError(t, store.SetState(ctx, "b", quality.StatePendingReview, true, "low confidence"))

	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, quality.StatePendingReview, got.State)
	assert.True(t, got.PendingReview)
	assert.Equal(t, "low confidence", got.ReviewReason)

	ids, err := store.ListByState(ctx, quality.StateGenerated)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}

func TestHistoryStore_TrimsToLimit(t *testing.T) {
	ctx := context.Background()
	history := NewHistoryStore(setupTestDB(t), 3)
	actor := Actor{ID: "7", Name: "editor"}

	for i := 0; i < 5; i++ {
		data, _ := json.Marshal(map[string]any{"@type": "Article", "headline": i})
		_, err := history.Save(ctx, "post-1", data, actor)
		require.NoError(t, err)
	}
	_, err := history.Save(ctx, "post-2", json.RawMessage(`{"headline":"other"}`), actor)
	require.NoError(t, err)

	versions, err := history.List(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.JSONEq(t, `{"@type":"Article","headline":2}`, string(versions[0].Data))
	assert.JSONEq(t, `{"@type":"Article","headline":4}`, string(versions[2].Data))
	assert.Equal(t, "editor", versions[0].UserName)

	other, err := history.List(ctx, "post-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestHistoryStore_DefaultLimit(t *testing.T) {
	history := NewHistoryStore(setupTestDB(t), 0)
	assert.Equal(t, DefaultHistoryLimit, history.limit)
}

func TestHistoryStore_Restore(t *testing.T) {
	ctx := context.Background()
	history := NewHistoryStore(setupTestDB(t), 10)

	_, err := history.Save(ctx, "post-1", json.RawMessage(`{"name":"v1"}`), SystemActor)
	require.NoError(t, err)
	_, err = history.Save(ctx, "post-1", json.RawMessage(`{"name":"v2"}`), SystemActor)
	require.NoError(t, err)

	restored, err := history.Restore(ctx, "post-1", 0, json.RawMessage(`{"name":"current"}`), Actor{ID: "1", Name: "admin"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"v1"}`, string(restored.Data))

	versions, err := history.List(ctx, "post-1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.JSONEq(t, `{"name":"current"}`, string(versions[2].Data))
	assert.Equal(t, "admin", versions[2].UserName)

	_, err = history.Restore(ctx, "post-1", 9, nil, SystemActor)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestHistoryStore_Compare(t *testing.T) {
	ctx := context.Background()
	history := NewHistoryStore(setupTestDB(t), 10)

	_, err := history.Save(ctx, "p", json.RawMessage(`{"name":"Acme","url":"https://acme.test","logo":"a.png"}`), SystemActor)
	require.NoError(t, err)
	_, err = history.Save(ctx, "p", json.RawMessage(`{"name":"Acme Corp","url":"https://acme.test","telephone":"+1"}`), SystemActor)
	require.NoError(t, err)

	diff, err := history.Compare(ctx, "p", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"telephone": "+1"}, diff.Added)
	assert.Equal(t, map[string]any{"logo": "a.png"}, diff.Removed)
	assert.Equal(t, map[string]Change{"name": {Old: "Acme", New: "Acme Corp"}}, diff.Changed)

	_, err = history.Compare(ctx, "p", 0, 5)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestReviewStore_WithQueue(t *testing.T) {
	ctx := context.Background()
	queue := quality.NewReviewQueue(NewReviewStore(setupTestDB(t)), nil)

	_, err := queue.Flag(ctx, "post-1", "low confidence", 0.55, map[string]any{"name": "Acme"})
	require.NoError(t, err)
	_, err = queue.Flag(ctx, "post-2", "low confidence", 0.4, nil)
	require.NoError(t, err)
	// Flagging again replaces the entry rather than adding one
	_, err = queue.Flag(ctx, "post-1", "repair exhausted", 0.3, map[string]any{"name": "Acme"})
	require.NoError(t, err)

	count, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entry, err := queue.Get(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, "repair exhausted", entry.Reason)
	assert.Equal(t, 0.3, entry.Confidence)
	assert.JSONEq(t, `{"name":"Acme"}`, string(entry.Data))
	assert.Equal(t, quality.StatusPending, entry.Status)

	require.NoError(t, queue.Approve(ctx, "post-1"))
	require.NoError(t, queue.Discard(ctx, "post-2"))

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = queue.Approve(ctx, "post-1")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = queue.Get(ctx, "post-1")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestEventLog_ValidationStatuses(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog(setupTestDB(t))
	log.timeNow = fixedClock()

	invalid := jsonld.NewReport()
	for i := 0; i < 7; i++ {
		invalid.AddError("Organization", "problem %d", i)
	}
	warned := jsonld.NewReport()
	warned.AddWarning("Article", "missing image")

	require.NoError(t, log.LogValidation(ctx, "p1", "https://example.test/a", *jsonld.NewReport(), []string{"Article"}))
	require.NoError(t, log.LogValidation(ctx, "p2", "https://example.test/b", *invalid, []string{"Organization"}))
	require.NoError(t, log.LogValidation(ctx, "p3", "", *warned, nil))

	events, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, StatusWarning, events[0].Status)
	assert.Equal(t, StatusInvalid, events[1].Status)
	assert.Equal(t, StatusValid, events[2].Status)

	var details struct {
		ErrorCount int      `json:"error_count"`
		Errors     []string `json:"errors"`
		Types      []string `json:"schema_types"`
	}
	require.NoError(t, json.Unmarshal(events[1].Details, &details))
	assert.Equal(t, 7, details.ErrorCount)
	assert.Len(t, details.Errors, 5)
	assert.Equal(t, []string{"Organization"}, details.Types)
}

func TestEventLog_Stats(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog(setupTestDB(t))

	st, err := log.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Health: 100}, st)

	bad := jsonld.NewReport()
	bad.AddError("", "missing @type")

	require.NoError(t, log.LogValidation(ctx, "p1", "https://example.test/a", *jsonld.NewReport(), nil))
	require.NoError(t, log.LogValidation(ctx, "p2", "https://example.test/b", *bad, nil))
	require.NoError(t, log.LogValidation(ctx, "p2", "https://example.test/b", *bad, nil))
	require.NoError(t, log.LogValidation(ctx, "p3", "", *jsonld.NewReport(), nil))
	require.NoError(t, log.LogFix(ctx, "p2", true, nil))
	require.NoError(t, log.LogFix(ctx, "p2", false, errors.New("still invalid")))
	require.NoError(t, log.LogSystemError(ctx, "database locked", map[string]any{"op": "save"}))

	st, err = log.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Invalid)
	assert.Equal(t, 1, st.Fixes)
	assert.Equal(t, 67, st.Health)
}

func TestEventLog_FixAndSystemErrorDetails(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog(setupTestDB(t))
	log.timeNow = fixedClock()

	require.NoError(t, log.LogFix(ctx, "p9", false, errors.New("completion failed")))
	require.NoError(t, log.LogSystemError(ctx, "cache unavailable", nil))

	events, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventSystemError, events[0].Type)
	assert.Equal(t, StatusError, events[0].Status)
	assert.JSONEq(t, `{"message":"cache unavailable","context":{}}`, string(events[0].Details))

	assert.Equal(t, EventFix, events[1].Type)
	assert.Equal(t, StatusFailed, events[1].Status)
	assert.JSONEq(t, `{"error":"completion failed"}`, string(events[1].Details))
}
