package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/handover/internal/drain"
	"github.com/loykin/handover/internal/history"
	"github.com/loykin/handover/internal/restart"
)

type fakeRestarter struct {
	pid    int
	err    error
	status restart.Status
	calls  int
	source history.Source
}

func (f *fakeRestarter) TriggerLocal(_ context.Context, source history.Source) (int, error) {
	f.calls++
	f.source = source
	if f.err != nil {
		return 0, f.err
	}
	return f.pid, nil
}

func (f *fakeRestarter) Status() restart.Status { return f.status }

// sendOnlySink implements history.Sink but not HistoryReader.
type sendOnlySink struct{}

func (sendOnlySink) Send(context.Context, history.Event) error { return nil }

func setupRouter(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(cfg).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, Config{})
	rec := doReq(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body okResp
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse json: %v", err)
	}
	if !body.OK {
		t.Fatalf("expected ok=true, got %+v", body)
	}
}

func TestBasePathPrefixesRoutes(t *testing.T) {
	h := setupRouter(t, Config{BasePath: "/admin"})
	rec := doReq(t, h, http.MethodGet, "/admin/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under base path, got %d", rec.Code)
	}
	rec = doReq(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without base path, got %d", rec.Code)
	}
}

func TestStatusReportsRestartAndDrain(t *testing.T) {
	d := drain.New()
	h1 := d.Acquire()
	h2 := d.Acquire()
	defer h1.Release()
	defer h2.Release()

	fr := &fakeRestarter{status: restart.Status{
		PID:        1234,
		Generation: 3,
		SocketPath: "/tmp/x.sock",
		Enabled:    true,
		StartedAt:  time.Now(),
	}}
	h := setupRouter(t, Config{Restarter: fr, Drain: d})
	rec := doReq(t, h, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse json: %v", err)
	}
	rst, ok := body["restart"].(map[string]any)
	if !ok {
		t.Fatalf("missing restart block: %v", body)
	}
	if rst["pid"].(float64) != 1234 || rst["generation"].(float64) != 3 {
		t.Fatalf("unexpected restart status: %v", rst)
	}
	dr, ok := body["drain"].(map[string]any)
	if !ok {
		t.Fatalf("missing drain block: %v", body)
	}
	if dr["active_handles"].(float64) != 2 {
		t.Fatalf("expected 2 active handles, got %v", dr["active_handles"])
	}
	if dr["drain_requested"].(bool) {
		t.Fatalf("drain should not be requested yet")
	}
}

func TestRestartSuccess(t *testing.T) {
	fr := &fakeRestarter{pid: 4242}
	h := setupRouter(t, Config{Restarter: fr})
	rec := doReq(t, h, http.MethodPost, "/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body restartResp
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse json: %v", err)
	}
	if !body.OK || body.PID != 4242 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if fr.source != history.SourceHTTP {
		t.Fatalf("expected source %q, got %q", history.SourceHTTP, fr.source)
	}
}

func TestRestartWithoutCoordinator(t *testing.T) {
	h := setupRouter(t, Config{})
	rec := doReq(t, h, http.MethodPost, "/restart", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRestartFailureCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"in_progress", restart.ErrInProgress, http.StatusConflict, restart.KindInProgress},
		{"handed_over", restart.ErrHandedOver, http.StatusConflict, restart.KindInProgress},
		{"veto", &restart.VetoError{Err: context.Canceled}, http.StatusConflict, restart.KindVeto},
		{"spawn", &restart.SpawnError{Err: context.Canceled}, http.StatusInternalServerError, restart.KindSpawn},
		{"not_ready", &restart.NotReadyError{Err: context.DeadlineExceeded}, http.StatusInternalServerError, restart.KindNotReady},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := setupRouter(t, Config{Restarter: &fakeRestarter{err: tc.err}})
			rec := doReq(t, h, http.MethodPost, "/restart", nil)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			var body errorResp
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse json: %v", err)
			}
			if body.Kind != tc.wantKind {
				t.Fatalf("expected kind %q, got %q", tc.wantKind, body.Kind)
			}
		})
	}
}

func TestHistoryUnsupportedSink(t *testing.T) {
	h := setupRouter(t, Config{History: sendOnlySink{}})
	rec := doReq(t, h, http.MethodGet, "/history", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestHistoryFromSQLSink(t *testing.T) {
	sink, err := history.NewSQLSinkFromDSN(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventTriggered, OccurredAt: time.Now(), PID: 100, Generation: 1, Source: history.SourceHTTP},
		{Type: history.EventSucceeded, OccurredAt: time.Now(), PID: 100, Generation: 1, ChildPID: 200, Source: history.SourceHTTP},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	h := setupRouter(t, Config{History: sink})
	rec := doReq(t, h, http.MethodGet, "/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got []history.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse json: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != history.EventSucceeded {
		t.Fatalf("expected newest event first, got %q", got[0].Type)
	}

	rec = doReq(t, h, http.MethodGet, "/history?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse json: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event with limit=1, got %d", len(got))
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	h := setupRouter(t, Config{History: sendOnlySink{}})
	for _, q := range []string{"limit=abc", "limit=0", "limit=-3"} {
		rec := doReq(t, h, http.MethodGet, "/history?"+q, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	fr := &fakeRestarter{pid: 1}
	h := setupRouter(t, Config{Restarter: fr, AuthTokenHash: string(hash)})

	// healthz stays open
	rec := doReq(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = doReq(t, h, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}
	rec = doReq(t, h, http.MethodGet, "/status", map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}
	rec = doReq(t, h, http.MethodPost, "/restart", map[string]string{"Authorization": "Bearer sekret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fr.calls != 1 {
		t.Fatalf("expected 1 trigger call, got %d", fr.calls)
	}
}
