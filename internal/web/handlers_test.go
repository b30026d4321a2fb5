package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
)

var stamp = time.Date(2026, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

func setupTest(t *testing.T) (http.Handler, *store.FileStore) {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "status.json"))
	return NewHandler(fs, "test"), fs
}

func save(t *testing.T, fs *store.FileStore, s snapshot.Snapshot) {
	t.Helper()
	if err := fs.Save(context.Background(), store.Record{ID: "x", Snapshot: s}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func assertStatusHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization",
		"Cache-Control":                "no-cache, no-store, must-revalidate",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestHandleStatus(t *testing.T) {
	h, fs := setupTest(t)
	save(t, fs, snapshot.New(snapshot.StateDelegating, "delegating to 2 helpers", 2, stamp))

	rec := serve(h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	assertStatusHeaders(t, rec)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "delegating" || body["message"] != "delegating to 2 helpers" || body["subagents"] != float64(2) {
		t.Errorf("body = %v", body)
	}
	if body["lastUpdate"] != "2026-01-02T03:04:05.678Z" {
		t.Errorf("lastUpdate = %v", body["lastUpdate"])
	}
}

func TestHandleStatus_QueryStringAllowed(t *testing.T) {
	h, fs := setupTest(t)
	save(t, fs, snapshot.New(snapshot.StateIdle, "", 0, stamp))

	rec := serve(h, http.MethodGet, "/status?t=1767323045678")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleStatus_Missing(t *testing.T) {
	h, _ := setupTest(t)

	rec := serve(h, http.MethodGet, "/status")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	assertStatusHeaders(t, rec)
	assertErrorCode(t, rec, "STATUS_MISSING")
}

func TestHandleStatus_Corrupt(t *testing.T) {
	h, fs := setupTest(t)
	if err := os.WriteFile(fs.Path(), []byte(`{"state": "work`), 0644); err != nil {
		t.Fatal(err)
	}

	rec := serve(h, http.MethodGet, "/status")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	assertErrorCode(t, rec, "STATUS_CORRUPT")
	if strings.Contains(rec.Body.String(), `"state"`) {
		t.Error("error body must not carry snapshot fields")
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, code string) {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q", body.Error.Code, code)
	}
}

func TestOptions_AnyPath(t *testing.T) {
	h, _ := setupTest(t)
	for _, path := range []string{"/status", "/", "/anything/else"} {
		rec := serve(h, http.MethodOptions, path)
		if rec.Code != http.StatusOK {
			t.Errorf("OPTIONS %s = %d, want 200", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("OPTIONS %s body = %q, want empty", path, rec.Body.String())
		}
		assertStatusHeaders(t, rec)
	}
}

func TestNotFound(t *testing.T) {
	h, _ := setupTest(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/status/extra"},
		{http.MethodPost, "/status"},
	} {
		rec := serve(h, tc.method, tc.path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, rec.Code)
		}
		assertStatusHeaders(t, rec)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := setupTest(t)
	rec := serve(h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleSummary(t *testing.T) {
	h, fs := setupTest(t)
	save(t, fs, snapshot.New(snapshot.StateWorking, "crafting logic...", 0, stamp))

	rec := serve(h, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<h2>working</h2>", "crafting logic...", "kiki test"} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q:\n%s", want, body)
		}
	}
}

func TestHandleSummary_Missing(t *testing.T) {
	h, _ := setupTest(t)
	rec := serve(h, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No status yet") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSummaryMarkdown(t *testing.T) {
	md := summaryMarkdown(snapshot.New(snapshot.StateDelegating, "delegating to 3 helpers", 3, stamp), stamp.Add(90*time.Second))
	for _, want := range []string{"## delegating", "> delegating to 3 helpers", "**Subagents:** 3", "(1m ago)"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestFormatAge(t *testing.T) {
	tests := map[time.Duration]string{
		-time.Second:     "0s",
		12 * time.Second: "12s",
		3 * time.Minute:  "3m",
		2 * time.Hour:    "2h",
	}
	for d, want := range tests {
		if got := formatAge(d); got != want {
			t.Errorf("formatAge(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	fs := store.NewFileStore(filepath.Join(t.TempDir(), "status.json"))
	srv := NewServer(fs, "test", "127.0.0.1", 0)
	srv.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv) }()

	// Wait for the listener.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
