package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/cache"
	"github.com/teranos/ldschema/content"
	"github.com/teranos/ldschema/db"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/fetch"
	"github.com/teranos/ldschema/jsonld/catalog"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/jsonld/validate"
	"github.com/teranos/ldschema/metrics"
	"github.com/teranos/ldschema/render"
	"github.com/teranos/ldschema/storage"
	"github.com/teranos/ldschema/workflow"
)

const testDebugToken = "s3cret"

// stubCompleter always answers with the same reply
type stubCompleter struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (s *stubCompleter) Complete(context.Context, completion.Request) (*completion.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &completion.Response{Content: s.reply}, nil
}

type testEnv struct {
	handler http.Handler
	server  *Server
	source  *content.MemorySource
	queue   *quality.ReviewQueue
}

func newTestEnv(t *testing.T, completer *stubCompleter) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "server.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	v := validate.New(catalog.Default())
	repairer := repair.New(completer, v)
	source := content.NewMemorySource()
	schemas := storage.NewSchemaStore(conn)
	history := storage.NewHistoryStore(conn, 0)
	events := storage.NewEventLog(conn)
	queue := quality.NewReviewQueue(storage.NewReviewStore(conn), log)
	c := cache.New(cache.NewMemoryStore(), "test", time.Hour, cache.WithObserver(m))

	svc, err := workflow.New(workflow.Config{
		Content:   source,
		Validator: v,
		Repairer:  repairer,
		Completer: completer,
		Schemas:   schemas,
		History:   history,
		Events:    events,
		Review:    queue,
		Observer:  m,
		Logger:    log,
	})
	require.NoError(t, err)

	renderer := render.New(source, schemas, v,
		render.WithBuilders(
			render.OrganizationBuilder{Name: "Acme", URL: "https://acme.test"},
			render.WebPageBuilder{},
		),
		render.WithRecorder(m))

	inspector := fetch.NewInspector(
		fetch.NewClient(time.Second, fetch.ClientOptions{AllowPrivateIPs: true}), v,
		fetch.WithCache(c))

	srv, err := New(Config{
		Workflow:   svc,
		Renderer:   renderer,
		Repairer:   repairer,
		History:    history,
		Events:     events,
		Review:     queue,
		Inspector:  inspector,
		Cache:      c,
		Gatherer:   reg,
		DebugToken: testDebugToken,
		Logger:     log,
	})
	require.NoError(t, err)
	return &testEnv{handler: srv.Handler(), server: srv, source: source, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const validOrg = `{"@context":"https://schema.org","@type":"Organization","name":"Acme","url":"https://acme.test"}`

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "workflow")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"running"}`, rec.Body.String())

	env.server.setState(ServerStateDraining)
	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{})

	rec := env.do(t, http.MethodPost, "/v1/validate", validOrg)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Report.Valid)
	assert.Equal(t, []string{"Organization"}, resp.Types)

	rec = env.do(t, http.MethodPost, "/v1/validate", `{"@type":`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.False(t, resp.Report.Valid)
	require.Len(t, resp.Report.Errors, 1)
	assert.Contains(t, resp.Report.Errors[0], "Invalid JSON")
}

func TestRepair_StoredSchemaThenHistory(t *testing.T) {
	completer := &stubCompleter{reply: `{}`}
	env := newTestEnv(t, completer)
	env.source.Put(&content.Content{
		ID:       "acme",
		Fields:   map[string]any{"name": "Acme", "url": "https://acme.test"},
		Metadata: map[string]any{"schema": validOrg},
	})

	rec := env.do(t, http.MethodPost, "/v1/content/acme/repair", "", headerUserID, "7", headerUserName, "editor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out workflow.Outcome
	decode(t, rec, &out)
	assert.Equal(t, quality.StatePublished, out.State)
	assert.Equal(t, 0, completer.calls)

	rec = env.do(t, http.MethodGet, "/v1/content/acme/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist historyResponse
	decode(t, rec, &hist)
	require.Len(t, hist.Versions, 1)
	assert.Equal(t, "7", hist.Versions[0].UserID)
	assert.Equal(t, "editor", hist.Versions[0].UserName)

	rec = env.do(t, http.MethodPost, "/v1/content/acme/history/0/restore", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/content/acme/history/9/restore", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/content/acme/history/x/restore", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepair_InlineData(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: `{}`})

	body, err := json.Marshal(repairRequest{Data: json.RawMessage(validOrg)})
	require.NoError(t, err)
	rec := env.do(t, http.MethodPost, "/v1/content/inline-1/repair", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out workflow.Outcome
	decode(t, rec, &out)
	assert.Equal(t, "inline-1", out.SubjectID)
	assert.Equal(t, quality.StatePublished, out.State)
}

func TestRepair_Errors(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: `{}`})

	rec := env.do(t, http.MethodPost, "/v1/content/missing/repair", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/content/x/repair", `{"data":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "Invalid request body")
}

func TestRepair_UnresolvedThenApprove(t *testing.T) {
	completer := &stubCompleter{reply: `{"@type":"Organization"}`}
	env := newTestEnv(t, completer)

	rec := env.do(t, http.MethodPost, "/v1/content/raw-2/repair", `{"data":{"@type":"Organization"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out workflow.Outcome
	decode(t, rec, &out)
	assert.Equal(t, quality.StatePendingReview, out.State)

	rec = env.do(t, http.MethodGet, "/v1/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var queue reviewResponse
	decode(t, rec, &queue)
	require.Equal(t, 1, queue.Count)
	assert.Equal(t, "raw-2", queue.Entries[0].SubjectID)

	rec = env.do(t, http.MethodPost, "/v1/review/raw-2/approve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &out)
	assert.Equal(t, quality.StatePublished, out.State)

	rec = env.do(t, http.MethodPost, "/v1/review/raw-2/discard", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats statsResponse
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 0, stats.PendingReview)
	assert.NotEmpty(t, stats.Recent)
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "```json\n" + validOrg + "\n```"})
	env.source.Put(&content.Content{
		ID:     "acme",
		Fields: map[string]any{"title": "Acme", "url": "https://acme.test", "name": "Acme"},
	})

	rec := env.do(t, http.MethodPost, "/v1/content/acme/generate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/content/acme/generate", `{"type":"Organization"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out workflow.Outcome
	decode(t, rec, &out)
	assert.Equal(t, quality.StatePublished, out.State)
}

func TestRender_DebugRequiresToken(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{})
	env.source.Put(&content.Content{
		ID:     "about",
		Fields: map[string]any{"title": "About us", "url": "https://acme.test/about"},
	})

	rec := env.do(t, http.MethodGet, "/v1/content/about/render", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"debug"`)

	rec = env.do(t, http.MethodGet, "/v1/content/about/render?debug=1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/content/about/render?debug=1", "", headerDebugToken, "wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/content/about/render?debug=1", "", headerDebugToken, testDebugToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Debug *struct {
			Accepted []json.RawMessage `json:"accepted"`
		} `json:"debug"`
	}
	decode(t, rec, &page)
	require.NotNil(t, page.Debug)
	assert.Len(t, page.Debug.Accepted, 2)

	rec = env.do(t, http.MethodGet, "/v1/content/about/render?format=html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `<script type="application/ld+json">`))

	rec = env.do(t, http.MethodGet, "/v1/content/nope/render", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRender_DebugDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{})
	env.server.debugToken = ""
	env.source.Put(&content.Content{ID: "about", Fields: map[string]any{"title": "About"}})

	rec := env.do(t, http.MethodGet, "/v1/content/about/render?debug=1", "", headerDebugToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInspectAndCacheClear(t *testing.T) {
	var hits atomic.Int32
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><script type="application/ld+json">`+validOrg+`</script></head></html>`)
	}))
	defer page.Close()

	env := newTestEnv(t, &stubCompleter{})
	body := `{"url":"` + page.URL + `"}`

	rec := env.do(t, http.MethodPost, "/v1/inspect", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var insp fetch.Inspection
	decode(t, rec, &insp)
	assert.Equal(t, 1, insp.Blocks)
	assert.Equal(t, []string{"Organization"}, insp.Types)
	assert.True(t, insp.Report.Valid)

	env.do(t, http.MethodPost, "/v1/inspect", body)
	assert.Equal(t, int32(1), hits.Load())

	rec = env.do(t, http.MethodDelete, "/v1/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":1}`, rec.Body.String())

	env.do(t, http.MethodPost, "/v1/inspect", body)
	assert.Equal(t, int32(2), hits.Load())

	rec = env.do(t, http.MethodPost, "/v1/inspect", `{"url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/inspect", `{"url":"ftp://example.com/"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{})
	env.source.Put(&content.Content{ID: "about", Fields: map[string]any{"title": "About"}})
	env.do(t, http.MethodGet, "/v1/content/about/render", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ldschema_registry_accepted_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.NewNotFoundError("content %s", "x"), http.StatusNotFound},
		{"invalid", errors.NewInvalidRequestError("bad"), http.StatusBadRequest},
		{"forbidden", errors.Wrap(ErrForbidden, "debug"), http.StatusForbidden},
		{"rate limited", errors.Wrap(errors.ErrRateLimited, "429"), http.StatusTooManyRequests},
		{"upstream client", &completion.ServiceError{Class: completion.ClassClient, StatusCode: 400}, http.StatusBadGateway},
		{"no key", errors.ErrNoAPIKey, http.StatusBadGateway},
		{"parse", errors.Wrap(errors.ErrAIResponseParse, "repair attempt 1"), http.StatusBadGateway},
		{"timeout", errors.Wrap(errors.ErrTimeout, "fetch"), http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteErrMarksRetryable(t *testing.T) {
	s := &Server{logger: zaptest.NewLogger(t).Sugar()}
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &completion.ServiceError{Class: completion.ClassRateLimit, StatusCode: 429}, true},
		{"upstream 5xx", &completion.ServiceError{Class: completion.ClassServer, StatusCode: 503}, true},
		{"auth", &completion.ServiceError{Class: completion.ClassAuth, StatusCode: 401}, false},
		{"not found", errors.NewNotFoundError("content %s", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeErr(rec, httptest.NewRequest(http.MethodPost, "/v1/content/x/repair", nil), tt.err)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.retryable, body.Retryable)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestRawInput(t *testing.T) {
	assert.Equal(t, "", rawInput(nil))
	assert.Equal(t, "", rawInput(json.RawMessage("null")))
	assert.Equal(t, `{"a":1}`, rawInput(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, "```json\n{}\n```", rawInput(json.RawMessage(`"`+"```json\\n{}\\n```"+`"`)))
}
