package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/kiki/internal/classifier"
	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/poller"
	"github.com/hpungsan/kiki/internal/signal"
	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store      store.Store
	cfg        *config.Config
	classifier *classifier.Classifier
	reader     signal.Reader
	fetcher    poller.Fetcher
	now        func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, cfg *config.Config) *Handlers {
	return &Handlers{
		store:      st,
		cfg:        cfg,
		classifier: classifier.FromConfig(cfg),
		reader:     classifier.ReaderFromConfig(cfg),
		fetcher:    &poller.HTTPFetcher{},
		now:        time.Now,
	}
}

// PollRequest represents the arguments for status_poll.
type PollRequest struct {
	URL  string `json:"url,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// GetOutput is the status_get result.
type GetOutput struct {
	snapshot.Wire
	AgeSeconds float64 `json:"age_seconds"`
}

// ClassifyOutput is the status_classify result.
type ClassifyOutput struct {
	Snapshot       snapshot.Wire `json:"snapshot"`
	LastSignal     *string       `json:"last_signal"`
	ElapsedSeconds *float64      `json:"elapsed_seconds"`
	Workers        int           `json:"workers"`
}

// PollOutput is the status_poll result.
type PollOutput struct {
	Display    poller.Display    `json:"display"`
	Connection poller.Connection `json:"connection"`
}

// HandleGet handles the status_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.store.Load(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(GetOutput{
		Wire:       snap.ToWire(),
		AgeSeconds: snap.Age(h.now()).Seconds(),
	})
}

// HandleClassify handles the status_classify tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := h.now()
	reading := h.reader.Read(now)
	snap := h.classifier.Classify(reading, now)

	out := ClassifyOutput{
		Snapshot: snap.ToWire(),
		Workers:  reading.Workers,
	}
	if !reading.LastSignal.IsZero() {
		ts := reading.LastSignal.UTC().Format(snapshot.TimestampLayout)
		elapsed := classifier.Elapsed(reading.LastSignal, now).Seconds()
		out.LastSignal = &ts
		out.ElapsedSeconds = &elapsed
	}
	return successResult(out)
}

// HandlePoll handles the status_poll tool call.
func (h *Handlers) HandlePoll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PollRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	sources := h.cfg.Sources
	if input.URL != "" {
		kind := input.Kind
		if kind == "" {
			kind = config.SourceLocal
		}
		sources = []config.SourceConfig{{Kind: kind, URL: input.URL}}
	} else if input.Kind != "" {
		return errorResult(errors.NewInvalidRequest("kind requires url")), nil
	}
	if len(sources) == 0 {
		return errorResult(errors.NewInvalidRequest("no sources configured")), nil
	}

	p := poller.New(poller.SourcesFromConfig(sources), nil, poller.Options{
		Freshness: h.cfg.FreshnessWindow.Std(),
		Fetcher:   h.fetcher,
		Now:       h.now,
	})
	display, _ := p.Tick(ctx)
	return successResult(PollOutput{Display: display, Connection: p.Connection()})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var kErr *errors.KikiError
	if stderrors.As(err, &kErr) {
		errorObj := map[string]any{
			"code":    kErr.Code,
			"message": kErr.Message,
			"status":  kErr.Status,
		}
		if kErr.Code != errors.ErrInternal && kErr.Details != nil {
			errorObj["details"] = kErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
