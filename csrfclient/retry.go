package csrfclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Error codes the server uses to signal a CSRF failure in a 403 body.
const (
	CodeTokenMissing  = "CSRF_TOKEN_MISSING"
	CodeTokenInvalid  = "CSRF_TOKEN_INVALID"
	CodeTokenExpired  = "CSRF_TOKEN_EXPIRED"
	CodeTokenMismatch = "CSRF_TOKEN_MISMATCH"
	CodeOriginInvalid = "CSRF_ORIGIN_INVALID"
)

// maxErrorBody caps how much of a 403 body is inspected.
const maxErrorBody = 64 << 10

var errBodyNotReplayable = errors.New("csrfclient: request body cannot be replayed")

// IsCSRFCode reports whether code is one of the CSRF failure codes.
func IsCSRFCode(code string) bool {
	switch code {
	case CodeTokenMissing, CodeTokenInvalid, CodeTokenExpired, CodeTokenMismatch, CodeOriginInvalid:
		return true
	default:
		return false
	}
}

// errorBody accepts {"code": ...} and {"error": {"code": ...}} or {"error": "..."}.
type errorBody struct {
	Code  string          `json:"code"`
	Error json.RawMessage `json:"error"`
}

// CSRFFailureCode returns the server's error code when resp is a CSRF failure:
// status 403 and a body code from the fixed CSRF set. Any other 403 is not a CSRF failure.
// The body is restored so callers can still read it in full.
func CSRFFailureCode(resp *http.Response) (string, bool) {
	if resp == nil || resp.StatusCode != http.StatusForbidden || resp.Body == nil {
		return "", false
	}

	body, err := peekBody(resp)
	if err != nil {
		return "", false
	}

	code := errorCode(body)
	return code, IsCSRFCode(code)
}

// IsCSRFFailure reports whether resp is a CSRF failure. See CSRFFailureCode.
func IsCSRFFailure(resp *http.Response) bool {
	_, ok := CSRFFailureCode(resp)
	return ok
}

func errorCode(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Code != "" {
		return eb.Code
	}
	if len(eb.Error) == 0 {
		return ""
	}

	var nested struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(eb.Error, &nested); err == nil {
		return nested.Code
	}
	var s string
	if err := json.Unmarshal(eb.Error, &s); err == nil {
		return s
	}
	return ""
}

// peekBody reads up to maxErrorBody bytes and puts them back in front of the rest of the body.
func peekBody(resp *http.Response) ([]byte, error) {
	orig := resp.Body
	data, err := io.ReadAll(io.LimitReader(orig, maxErrorBody))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), orig), orig}
	return data, err
}

type retriedKey struct{}

// IsRetry reports whether ctx belongs to a request that was already retried once.
func IsRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// BeginRetry moves a logical request from its initial attempt to its retry.
//
// It refuses when retries are disabled, when ctx is already marked as a retry, or when
// the retry budget of the current token generation is used up. Otherwise it consumes one
// retry, forces a fresh token fetch and returns ctx marked as retried together with the
// new token. The boolean is false if the retry must not happen.
func (m *Manager) BeginRetry(ctx context.Context) (context.Context, string, bool) {
	if !m.cfg.RetryOnError {
		return ctx, "", false
	}
	if IsRetry(ctx) {
		m.debugf("retry: request was already retried")
		return ctx, "", false
	}

	m.mu.Lock()
	if m.retries >= m.cfg.MaxRetries {
		m.mu.Unlock()
		m.metrics.RecordRetry(RetryOutcomeExhausted)
		m.debugf("retry: budget of %d exhausted", m.cfg.MaxRetries)
		return ctx, "", false
	}
	m.retries++
	m.mu.Unlock()

	token, ok := m.Acquire(ctx, true)
	if !ok {
		m.metrics.RecordRetry(RetryOutcomeRefreshFailed)
		m.logger.Errorf("csrfclient: token refresh for retry failed")
		return ctx, "", false
	}

	return context.WithValue(ctx, retriedKey{}, true), token, true
}

// EndRetry records the outcome of a retry started with BeginRetry.
func (m *Manager) EndRetry(succeeded bool) {
	if succeeded {
		m.metrics.RecordRetry(RetryOutcomeSucceeded)
		return
	}
	m.metrics.RecordRetry(RetryOutcomeFailed)
}

// ResetRetryBudget clears the consumed retries. It is called on every non-CSRF failure
// so that one CSRF blip does not throttle retries for unrelated later requests.
func (m *Manager) ResetRetryBudget() {
	m.mu.Lock()
	m.retries = 0
	m.mu.Unlock()
}

// RetryRequest applies the retry policy to a response of req.
// It returns a clone of req carrying a freshly fetched token if resp is a CSRF failure
// of a state-changing request and a retry is allowed, or false if resp must be handed to the caller as is.
// The clone's context is marked so that it is never retried again.
func (m *Manager) RetryRequest(req *http.Request, resp *http.Response) (*http.Request, bool) {
	if !IsCSRFFailure(resp) {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			m.ResetRetryBudget()
		}
		return nil, false
	}
	if !IsStateChanging(req.Method) {
		m.debugf("retry: %s is not state-changing, returning CSRF failure as is", req.Method)
		return nil, false
	}

	ctx, token, ok := m.BeginRetry(req.Context())
	if !ok {
		return nil, false
	}

	retry, err := cloneRequest(ctx, req)
	if err != nil {
		m.logger.Errorf("csrfclient: cannot retry %s %s: %v", req.Method, req.URL.Redacted(), err)
		return nil, false
	}
	retry.Header.Set(m.cfg.HeaderName, token)
	return retry, true
}

// SendFunc sends a single HTTP request, e.g. a RoundTripper's RoundTrip or (*http.Client).Do.
type SendFunc func(*http.Request) (*http.Response, error)

// Do runs one logical request through the whole protocol: inject, send, observe and,
// on a CSRF failure, a single retry with a forced token refresh.
//
// The caller receives either a response that is not a CSRF failure or the final CSRF
// failure verbatim; non-CSRF errors and responses pass through untouched.
// req is modified in place: its body is buffered for replay and the token header is set.
func (m *Manager) Do(req *http.Request, send SendFunc) (*http.Response, error) {
	var id string
	if m.cfg.Debug {
		id = uuid.NewString()
		m.debugf("do[%s]: %s %s", id, req.Method, req.URL.Redacted())
	}

	if m.cfg.RetryOnError && IsStateChanging(req.Method) {
		if err := makeReplayable(req); err != nil {
			return nil, err
		}
	}

	req = m.Inject(req)

	resp, err := send(req)
	if err != nil {
		m.ResetRetryBudget()
		return nil, err
	}
	m.Observe(resp)

	retry, ok := m.RetryRequest(req, resp)
	if !ok {
		return resp, nil
	}

	m.debugf("do[%s]: CSRF failure, resending with refreshed token", id)
	drainAndClose(resp.Body)

	resp, err = send(retry)
	if err != nil {
		m.ResetRetryBudget()
		m.EndRetry(false)
		return nil, err
	}
	m.Observe(resp)

	if code, failed := CSRFFailureCode(resp); failed {
		m.EndRetry(false)
		m.logger.Errorf("csrfclient: %s %s rejected again after token refresh: %s", retry.Method, retry.URL.Redacted(), code)
		return resp, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		m.ResetRetryBudget()
	}
	m.EndRetry(true)
	m.debugf("do[%s]: retry completed with status %d", id, resp.StatusCode)
	return resp, nil
}

// makeReplayable buffers req.Body so the request can be sent a second time.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("csrfclient: read request body: %w", err)
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return nil
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errBodyNotReplayable
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("csrfclient: replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
