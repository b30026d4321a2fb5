package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/signal"
	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
)

var now = time.Date(2026, 8, 9, 10, 11, 12, 0, time.UTC)

// testSetup creates a file store and config rooted in a temp directory.
func testSetup(t *testing.T) (*store.FileStore, *config.Config) {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SessionsDir = filepath.Join(tmpDir, "sessions")
	cfg.RegistryPath = filepath.Join(tmpDir, "sessions", "sessions.json")
	return store.NewFileStore(filepath.Join(tmpDir, "status.json")), cfg
}

func newTestHandlers(st store.Store, cfg *config.Config) *Handlers {
	h := NewHandlers(st, cfg)
	h.now = func() time.Time { return now }
	return h
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleGet(t *testing.T) {
	st, cfg := testSetup(t)
	h := newTestHandlers(st, cfg)

	result, err := h.HandleGet(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleGet error: %v", err)
	}
	assertErrorCode(t, result, "STATUS_MISSING")

	snap := snapshot.New(snapshot.StateThinking, "contemplating architecture...", 0, now.Add(-30*time.Second))
	if err := st.Save(context.Background(), store.Record{ID: "a", Snapshot: snap}); err != nil {
		t.Fatal(err)
	}

	result, err = h.HandleGet(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleGet error: %v", err)
	}
	out := parseOutput(t, result)
	if out["state"] != "thinking" {
		t.Errorf("state = %v, want thinking", out["state"])
	}
	if out["age_seconds"] != float64(30) {
		t.Errorf("age_seconds = %v, want 30", out["age_seconds"])
	}
}

func TestHandleClassify(t *testing.T) {
	st, cfg := testSetup(t)
	if err := os.MkdirAll(cfg.SessionsDir, 0700); err != nil {
		t.Fatal(err)
	}
	h := newTestHandlers(st, cfg)
	h.reader = signal.Static{LastSignal: now.Add(-4 * time.Second), Workers: 2}

	result, err := h.HandleClassify(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleClassify error: %v", err)
	}
	out := parseOutput(t, result)

	snap := out["snapshot"].(map[string]any)
	if snap["state"] != "delegating" || snap["subagents"] != float64(2) {
		t.Errorf("snapshot = %v", snap)
	}
	if out["elapsed_seconds"] != float64(4) {
		t.Errorf("elapsed_seconds = %v, want 4", out["elapsed_seconds"])
	}
	if out["workers"] != float64(2) {
		t.Errorf("workers = %v, want 2", out["workers"])
	}

	// Classifying never publishes.
	if _, err := st.Load(context.Background()); !errors.Is(err, errors.ErrStatusMissing) {
		t.Errorf("store should still be empty, got %v", err)
	}
}

func TestHandleClassify_NoSignal(t *testing.T) {
	st, cfg := testSetup(t)
	h := newTestHandlers(st, cfg)

	result, _ := h.HandleClassify(context.Background(), makeRequest(nil))
	out := parseOutput(t, result)
	if out["last_signal"] != nil || out["elapsed_seconds"] != nil {
		t.Errorf("expected null signal fields, got %v", out)
	}
	if out["snapshot"].(map[string]any)["state"] != "sleeping" {
		t.Errorf("snapshot = %v", out["snapshot"])
	}
}

func TestHandlePoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"state":"working","message":"crafting logic...","subagents":0,"lastUpdate":%q}`,
			now.Format(snapshot.TimestampLayout))
	}))
	defer srv.Close()

	st, cfg := testSetup(t)
	cfg.Sources = []config.SourceConfig{
		{Kind: config.SourceLocal, URL: "http://127.0.0.1:1/status"},
		{Kind: config.SourceStaticFallback, URL: srv.URL + "/status.json"},
	}
	h := newTestHandlers(st, cfg)

	result, err := h.HandlePoll(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandlePoll error: %v", err)
	}
	out := parseOutput(t, result)

	display := out["display"].(map[string]any)
	if display["state"] != "working" || display["connected"] != true {
		t.Errorf("display = %v", display)
	}
	conn := out["connection"].(map[string]any)
	if conn["active_source_kind"] != config.SourceStaticFallback {
		t.Errorf("active_source_kind = %v", conn["active_source_kind"])
	}
	if conn["active_source_url"] != srv.URL+"/status.json" {
		t.Errorf("active_source_url = %v", conn["active_source_url"])
	}
}

func TestHandlePoll_InvalidArgs(t *testing.T) {
	st, cfg := testSetup(t)
	h := newTestHandlers(st, cfg)

	result, _ := h.HandlePoll(context.Background(), makeRequest(map[string]any{"kind": "remoteMirror"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandlePoll(context.Background(), makeRequest(map[string]any{"url": 42}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	cfg.Sources = nil
	result, _ = h.HandlePoll(context.Background(), makeRequest(nil))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestDecode_RejectsUnknownArguments(t *testing.T) {
	req := makeRequest(map[string]any{"url": "http://127.0.0.1:1/status", "kindd": "local"})
	req.Params.Name = "status_poll"

	_, err := decode[PollRequest](req)
	if err == nil {
		t.Fatal("decode() expected error for a misspelled argument")
	}
	if !strings.Contains(err.Error(), "status_poll: invalid arguments") || !strings.Contains(err.Error(), "kindd") {
		t.Errorf("decode() error = %v", err)
	}

	got, err := decode[PollRequest](makeRequest(map[string]any{"url": "http://x/status", "kind": "remoteMirror"}))
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if got.URL != "http://x/status" || got.Kind != "remoteMirror" {
		t.Errorf("decode() = %+v", got)
	}

	if _, err := decode[PollRequest](makeRequest(nil)); err != nil {
		t.Errorf("decode(no arguments) error = %v", err)
	}
}

func TestHandlePoll_Unreachable(t *testing.T) {
	st, cfg := testSetup(t)
	h := newTestHandlers(st, cfg)

	result, _ := h.HandlePoll(context.Background(), makeRequest(map[string]any{"url": "http://127.0.0.1:1/status"}))
	out := parseOutput(t, result)
	if out["display"].(map[string]any)["state"] != "disconnected" {
		t.Errorf("display = %v", out["display"])
	}
	if out["connection"].(map[string]any)["reachable"] != false {
		t.Errorf("connection = %v", out["connection"])
	}
}

func TestServerRegistration(t *testing.T) {
	st, cfg := testSetup(t)

	s := NewServer(st, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{"status_get", "status_classify", "status_poll"}
	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	st, cfg := testSetup(t)

	cfg.DisabledTools = []string{"status_poll", "status_poll"}
	tools := NewServer(st, cfg, "test").ListTools()

	if len(tools) != 2 {
		t.Errorf("registered tool count = %d, want 2", len(tools))
	}
	if _, ok := tools["status_poll"]; ok {
		t.Error("disabled tool 'status_poll' should not be registered")
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	st, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	tools := NewServer(st, cfg, "test").ListTools()
	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"status_get", "status_poll"}, 0},
		{"one unknown", []string{"status_get", "status_set"}, 1},
		{"empty list", []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateDisabledTools(tt.input); len(got) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	want := []string{"status_classify", "status_get", "status_poll"}
	if len(names) != len(want) {
		t.Fatalf("AllToolNames() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("AllToolNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}
	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedError(t *testing.T) {
	r := errorResult(fmt.Errorf("poll: %w", errors.NewInvalidRequest("bad url")))
	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInvalidRequest) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidRequest)
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" || errObj["message"] != "an internal error occurred" {
		t.Errorf("error = %v", errObj)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if !result.IsError {
		t.Errorf("expected error result, got %s", extractErrorMessage(result))
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
