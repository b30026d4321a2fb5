package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/kiki/internal/config"
	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
)

// DefaultGistFile is the file name patched when a gist hook names none.
const DefaultGistFile = "status.json"

// maxHookOutput caps how much subprocess or response output is kept for
// error messages.
const maxHookOutput = 512

// Hook distributes a persisted record somewhere else.
type Hook interface {
	Name() string
	Run(ctx context.Context, rec store.Record) error
}

// CommandHook runs an executable with the snapshot JSON on stdin.
type CommandHook struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Name returns the command path.
func (h *CommandHook) Name() string {
	return h.Command
}

// Run executes the command. The environment carries KIKI_STATE,
// KIKI_MESSAGE, KIKI_SUBAGENTS and KIKI_STATUS_ID.
func (h *CommandHook) Run(ctx context.Context, rec store.Record) error {
	ctx, cancel := withOptionalTimeout(ctx, h.Timeout)
	defer cancel()

	data, err := snapshot.Encode(rec.Snapshot)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, h.Command, h.Args...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Env = append(os.Environ(),
		"KIKI_STATE="+string(rec.Snapshot.State),
		"KIKI_MESSAGE="+rec.Snapshot.Message,
		"KIKI_SUBAGENTS="+strconv.Itoa(rec.Snapshot.Subagents),
		"KIKI_STATUS_ID="+rec.ID,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if tail := truncate(strings.TrimSpace(string(out))); tail != "" {
			return fmt.Errorf("%w: %s", err, tail)
		}
		return err
	}
	return nil
}

// HTTPHook sends the snapshot to a mirror URL.
type HTTPHook struct {
	URL string
	// Method defaults to PUT, or PATCH in gist format.
	Method string
	// Format is config.HookFormatRaw (default) or config.HookFormatGist.
	Format   string
	FileName string
	// Token, when set, is sent as "Authorization: Bearer <token>".
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// Name returns the target URL.
func (h *HTTPHook) Name() string {
	return h.URL
}

// gistPatch is the body GitHub's gist update endpoint accepts.
type gistPatch struct {
	Files map[string]gistFile `json:"files"`
}

type gistFile struct {
	Content string `json:"content"`
}

// Body renders the request payload for rec.
func (h *HTTPHook) Body(rec store.Record) ([]byte, error) {
	data, err := snapshot.Encode(rec.Snapshot)
	if err != nil {
		return nil, err
	}
	if h.Format != config.HookFormatGist {
		return data, nil
	}
	name := h.FileName
	if name == "" {
		name = DefaultGistFile
	}
	return json.Marshal(gistPatch{Files: map[string]gistFile{name: {Content: string(data)}}})
}

func (h *HTTPHook) method() string {
	if h.Method != "" {
		return strings.ToUpper(h.Method)
	}
	if h.Format == config.HookFormatGist {
		return http.MethodPatch
	}
	return http.MethodPut
}

// Run sends the request. Any non-2xx response is an error.
func (h *HTTPHook) Run(ctx context.Context, rec store.Record) error {
	ctx, cancel := withOptionalTimeout(ctx, h.Timeout)
	defer cancel()

	body, err := h.Body(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, h.method(), h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Format == config.HookFormatGist {
		req.Header.Set("Accept", "application/vnd.github+json")
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxHookOutput))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HooksFromConfig builds hooks in configured order.
func HooksFromConfig(cfgs []config.HookConfig) ([]Hook, error) {
	hooks := make([]Hook, 0, len(cfgs))
	for i, hc := range cfgs {
		switch {
		case hc.Command != "" && hc.URL != "":
			return nil, fmt.Errorf("hooks[%d]: set command or url, not both", i)
		case hc.Command != "":
			hooks = append(hooks, &CommandHook{
				Command: config.ExpandHome(hc.Command),
				Args:    hc.Args,
				Timeout: hc.Timeout.Std(),
			})
		case hc.URL != "":
			hooks = append(hooks, &HTTPHook{
				URL:      hc.URL,
				Method:   hc.Method,
				Format:   hc.Format,
				FileName: hc.FileName,
				Token:    hc.Token,
				Timeout:  hc.Timeout.Std(),
			})
		default:
			return nil, fmt.Errorf("hooks[%d]: command or url is required", i)
		}
	}
	return hooks, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func truncate(s string) string {
	if len(s) > maxHookOutput {
		return s[:maxHookOutput] + "..."
	}
	return s
}
