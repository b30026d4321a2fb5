package web

import (
	"bytes"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/kiki/internal/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData contains common fields used across page templates.
type PageData struct {
	Title   string
	Version string
}

// SummaryPageData is the template data for the summary page.
type SummaryPageData struct {
	PageData
	Body template.HTML
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	page    *template.Template
	version string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	page := template.Must(template.New("summary").ParseFS(templateFS, "summary.html"))
	return &Renderer{
		page:    page,
		version: version,
	}
}

// renderPage renders the summary page with HTTP 200.
func (r *Renderer) renderPage(w http.ResponseWriter, data any) {
	var buf bytes.Buffer
	if err := r.page.ExecuteTemplate(&buf, "summary.html", data); err != nil {
		log.Printf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// renderError writes a JSON error body with the error's status.
func renderError(w http.ResponseWriter, err error) {
	var kErr *errors.KikiError
	if !stderrors.As(err, &kErr) {
		kErr = errors.NewInternal(err)
	}
	if kErr.Status >= 500 {
		log.Printf("status endpoint: %v", kErr)
	}
	renderJSON(w, kErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(kErr.Code),
			"message": kErr.Message,
			"status":  kErr.Status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatAge renders d coarsely: "12s", "3m", "2h".
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
}
