package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"taskdeck/internal/core"
)

// HTTPRunner performs an HTTP request and judges the response status.
//
// Params: url (required), method (default GET), headers (string map),
// body (string), expected_status (list of acceptable codes; default any
// 2xx), allow_any_status (bool: never fail on status).
type HTTPRunner struct {
	Client *http.Client
}

var httpMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodHead: true,
	http.MethodOptions: true,
}

func (r *HTTPRunner) Validate(params map[string]any) error {
	rawURL, err := requireString(params, "url")
	if err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	method := strings.ToUpper(optionalString(params, "method", http.MethodGet))
	if !httpMethods[method] {
		return fmt.Errorf("unsupported method %q", method)
	}
	if _, err := stringMap(params, "headers"); err != nil {
		return err
	}
	if _, err := intSlice(params, "expected_status"); err != nil {
		return err
	}
	return nil
}

func (r *HTTPRunner) Run(ctx context.Context, t *core.Task, logf func(string, ...any)) core.RunResult {
	rawURL, _ := stringParam(t.Params, "url")
	method := strings.ToUpper(optionalString(t.Params, "method", http.MethodGet))
	headers, _ := stringMap(t.Params, "headers")
	expected, _ := intSlice(t.Params, "expected_status")
	body := optionalString(t.Params, "body", "")

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return failure("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logf("%s %s", method, rawURL)
	resp, err := r.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return cancelled()
		}
		return failure("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Response bodies can be large; keep a bounded summary.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	logf("status %d", resp.StatusCode)

	if !statusAccepted(resp.StatusCode, expected, boolParam(t.Params, "allow_any_status")) {
		return core.RunResult{
			Outcome: core.OutcomeFailure,
			Output:  string(snippet),
			Error:   fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	return core.RunResult{
		Outcome: core.OutcomeSuccess,
		Output:  fmt.Sprintf("status %d\n%s", resp.StatusCode, snippet),
	}
}

func statusAccepted(code int, expected []int, allowAny bool) bool {
	if allowAny {
		return true
	}
	if len(expected) > 0 {
		for _, want := range expected {
			if code == want {
				return true
			}
		}
		return false
	}
	return code >= 200 && code < 300
}
