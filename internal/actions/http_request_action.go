package actions

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"text/template"
	"time"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// httpRequestDefaultTimeout is the per-request timeout named in
// SPEC_FULL.md §4.4 when a rule does not override it.
const httpRequestDefaultTimeout = 30 * time.Second

// httpRequestMaxRetries and httpRequestRetryDelay give the action the
// "bounded retries with delay" §4.4 calls for, ported from the
// teacher's WebhookConfig.send retry loop. The normative config schema
// (§6.1) has no retry_count/retry_delay fields for http_request, so
// the bound is a fixed internal policy rather than per-rule config.
const httpRequestMaxRetries = 2

// httpRequestRetryDelay is a var, not a const, so tests can shrink it
// rather than paying the real delay.
var httpRequestRetryDelay = 500 * time.Millisecond

// httpRequestAction performs a single templated HTTP request. It is
// adapted from the teacher's internal/webhook.WebhookConfig: the
// compiled text/template body, the client construction, and the
// attempt/sleep retry loop in WebhookConfig.send are kept; the
// multi-webhook registry, event-type matching, and batching are
// dropped since a rule's HttpRequest action targets exactly one
// endpoint per invocation.
type httpRequestAction struct {
	url     string
	method  string
	headers map[string]string
	tmpl    *template.Template
	client  *http.Client
}

func newHTTPRequestAction(ac config.ActionConfig) (Action, error) {
	if ac.URL == "" {
		return nil, &Error{Kind: ErrConfiguration, Msg: "http_request action requires url"}
	}
	method := ac.Method
	if method == "" {
		method = http.MethodPost
	}

	var tmpl *template.Template
	if ac.Body != "" {
		t, err := template.New("http_request_body").Parse(ac.Body)
		if err != nil {
			return nil, &Error{Kind: ErrConfiguration, Msg: "invalid body template: " + err.Error()}
		}
		tmpl = t
	}

	return &httpRequestAction{
		url:     ac.URL,
		method:  method,
		headers: ac.Headers,
		tmpl:    tmpl,
		client:  &http.Client{Timeout: httpRequestDefaultTimeout},
	}, nil
}

func (a *httpRequestAction) Kind() string { return "http_request" }

func (a *httpRequestAction) Execute(ctx context.Context, ev events.Event, dryRun bool) (Result, error) {
	if dryRun {
		return Result{Success: true, Message: "dry-run: skipped http_request to " + a.url}, nil
	}

	url := expandPlaceholders(a.url, ev)
	body, err := a.renderBody(ev)
	if err != nil {
		return Result{}, execErr("rendering body template: %v", err)
	}

	var lastErr error
	for attempt := 0; attempt <= httpRequestMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, timeoutErr()
			case <-time.After(httpRequestRetryDelay):
			}
		}

		result, err := a.attempt(ctx, url, body, ev)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Result{}, timeoutErr()
		}
	}
	return Result{}, lastErr
}

// attempt performs one HTTP round trip, bounded by its own deadline so
// a slow attempt can't consume the other retries' budget.
func (a *httpRequestAction) attempt(ctx context.Context, url string, body []byte, ev events.Event) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, httpRequestDefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, a.method, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, execErr("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, expandPlaceholders(v, ev))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, execErr("request failed: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, captureCapBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, execErr("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return Result{Success: true, Message: string(respBody)}, nil
}

func (a *httpRequestAction) renderBody(ev events.Event) ([]byte, error) {
	if a.tmpl == nil {
		return []byte("{}"), nil
	}
	data := map[string]any{
		"Event":    ev,
		"Kind":     string(ev.Kind),
		"Source":   ev.Source,
		"Metadata": ev.Metadata,
	}
	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *httpRequestAction) Describe() string { return "http_request: " + a.method + " " + a.url }
