package poller

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/hpungsan/kiki/internal/snapshot"
)

// maxBody caps how much of a response is read.
const maxBody = 64 << 10

// Outcome tags the result of one attempt.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeTransport Outcome = "transport"
	OutcomeBadStatus Outcome = "badStatus"
	OutcomeMalformed Outcome = "malformed"
)

// Result is the outcome of one attempt against one source.
type Result struct {
	Outcome    Outcome
	Decoded    snapshot.Decoded
	StatusCode int
	Err        error
	// Cached is set when the payload came from the source's min-interval cache.
	Cached bool
}

// Fetcher performs one attempt. The context carries the source timeout.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, now time.Time) Result
}

// HTTPFetcher fetches snapshots over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

// RequestURL returns the URL to fetch. Non-local http(s) sources get a
// t=<unix ms> cache-busting parameter.
func RequestURL(src Source, now time.Time) (string, error) {
	if src.IsLocal() {
		return src.URL, nil
	}
	u, err := url.Parse(src.URL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "file" {
		return src.URL, nil
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch implements Fetcher. file:// sources are read from disk.
func (f *HTTPFetcher) Fetch(ctx context.Context, src Source, now time.Time) Result {
	target, err := RequestURL(src, now)
	if err != nil {
		return Result{Outcome: OutcomeTransport, Err: err}
	}
	if u, err := url.Parse(target); err == nil && u.Scheme == "file" {
		return fetchFile(ctx, u.Path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Outcome: OutcomeTransport, Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")
	if src.Token != "" {
		req.Header.Set("Authorization", "Bearer "+src.Token)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: classifyErr(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return Result{
			Outcome:    OutcomeBadStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{Outcome: classifyErr(ctx, err), StatusCode: resp.StatusCode, Err: err}
	}
	d, err := snapshot.Decode(body)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, StatusCode: resp.StatusCode, Err: err}
	}
	return Result{Outcome: OutcomeOK, Decoded: d, StatusCode: resp.StatusCode}
}

// fetchFile reads a static status file directly.
func fetchFile(ctx context.Context, path string) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: classifyErr(ctx, err), Err: err}
	}
	fh, err := os.Open(path)
	if err != nil {
		return Result{Outcome: OutcomeTransport, Err: err}
	}
	defer fh.Close()

	body, err := io.ReadAll(io.LimitReader(fh, maxBody))
	if err != nil {
		return Result{Outcome: OutcomeTransport, Err: err}
	}
	d, err := snapshot.Decode(body)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Err: err}
	}
	return Result{Outcome: OutcomeOK, Decoded: d}
}

func classifyErr(ctx context.Context, err error) Outcome {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeTransport
}
