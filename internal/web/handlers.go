package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/kiki/internal/errors"
	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
)

// Handlers contains HTTP route handlers for the status endpoint.
type Handlers struct {
	store    store.Store
	renderer *Renderer
	now      func() time.Time
}

// HandleStatus handles GET /status: the current snapshot in wire shape.
// A read failure answers with a JSON error and never a partial snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Load(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, snap.ToWire())
}

// HandleHealthz handles GET /healthz.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// HandleSummary handles GET / with a human-readable page.
func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Load(r.Context())
	var md string
	switch {
	case err == nil:
		md = summaryMarkdown(snap, h.now())
	case errors.Is(err, errors.ErrStatusMissing):
		md = "## No status yet\n\nThe watcher has not published a snapshot.\n"
	default:
		md = fmt.Sprintf("## Status unavailable\n\n`%s`\n", err.Error())
	}

	h.renderer.renderPage(w, SummaryPageData{
		PageData: PageData{
			Title:   "Kiki",
			Version: h.renderer.version,
		},
		Body: renderMarkdown(md),
	})
}

// HandleNotFound answers every unrouted path, including non-GET methods on
// known paths.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	renderError(w, errors.NewNotFound(r.URL.Path))
}

// summaryMarkdown describes snap as Markdown.
func summaryMarkdown(snap snapshot.Snapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", snap.State)
	if snap.Message != "" {
		fmt.Fprintf(&b, "> %s\n\n", snap.Message)
	}
	if snap.Subagents > 0 {
		fmt.Fprintf(&b, "- **Subagents:** %d\n", snap.Subagents)
	}
	if !snap.Timestamp.IsZero() {
		fmt.Fprintf(&b, "- **Last update:** %s (%s ago)\n",
			snap.Timestamp.UTC().Format(snapshot.TimestampLayout), formatAge(snap.Age(now)))
	}
	return b.String()
}
