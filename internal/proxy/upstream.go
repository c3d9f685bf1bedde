package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/toolgate/toolgate/internal/openai"
)

// Upstream failure classes. The orchestrator maps these to gateway statuses.
var (
	ErrUpstreamTimeout     = errors.New("upstream request timed out")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// Hop-by-hop headers are stripped before forwarding in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Upstream forwards requests to the OpenAI-compatible backend over a
// pooled HTTP client.
type Upstream struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// UpstreamOptions configures an Upstream.
type UpstreamOptions struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxConns       int
}

func NewUpstream(opts UpstreamOptions) *Upstream {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("TOOLGATE_UPSTREAM_API_KEY")
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 100
	}
	transport := &http.Transport{
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Upstream{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
	}
}

// BaseURL returns the configured backend base URL.
func (u *Upstream) BaseURL() string {
	return u.baseURL
}

// ForwardHeaders prepares inbound headers for requests whose response the
// proxy must decode. On top of PassthroughHeaders it drops Accept-Encoding:
// the transport then negotiates compression itself and transparently
// decompresses, so a gzipped backend body never reaches the JSON decoder.
func (u *Upstream) ForwardHeaders(in http.Header) http.Header {
	out := u.PassthroughHeaders(in)
	out.Del("Accept-Encoding")
	return out
}

// PassthroughHeaders copies inbound headers for verbatim relay: hop-by-hop
// headers, Host and Content-Length are dropped, and the configured API key
// replaces any inbound Authorization. The client's Accept-Encoding is kept,
// the response body is forwarded undecoded.
func (u *Upstream) PassthroughHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, vs := range in {
		if isHopByHop(k) || k == "Host" || k == "Content-Length" {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	if u.apiKey != "" {
		out.Set("Authorization", "Bearer "+u.apiKey)
	}
	return out
}

func isHopByHop(key string) bool {
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	for _, h := range hopByHopHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}

// Do forwards an arbitrary request body to path on the backend and returns
// the raw response. rawQuery is appended unmodified when non-empty. The
// caller owns the response body.
func (u *Upstream) Do(ctx context.Context, method, path, rawQuery string, headers http.Header, body io.Reader) (*http.Response, error) {
	target, err := url.JoinPath(u.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("build upstream url: %w", err)
	}
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if headers != nil {
		req.Header = headers
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}
	return resp, nil
}

// Chat posts a chat completion payload and decodes the JSON response.
// Non-2xx backend responses are returned verbatim as *BackendError so the
// orchestrator can relay status and body unchanged.
func (u *Upstream) Chat(ctx context.Context, path string, headers http.Header, payload openai.Payload) (openai.Payload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat payload: %w", err)
	}

	h := make(http.Header, len(headers))
	for k, vs := range headers {
		h[k] = vs
	}
	h.Set("Content-Type", "application/json")

	resp, err := u.Do(ctx, http.MethodPost, path, "", h, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{
			Status: resp.StatusCode,
			Body:   respBody,
			Header: resp.Header.Clone(),
		}
	}

	var out openai.Payload
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &MalformedResponseError{
			Status: resp.StatusCode,
			Body:   respBody,
			Header: resp.Header.Clone(),
			Err:    err,
		}
	}
	return out, nil
}

// BackendError carries a non-2xx backend response to be relayed verbatim.
type BackendError struct {
	Status int
	Body   []byte
	Header http.Header
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// MalformedResponseError carries a backend body that was expected to be JSON
// but did not parse. On the primary request the raw body is relayed to the
// caller; during tool rounds the loop falls back to the last good response.
type MalformedResponseError struct {
	Status int
	Body   []byte
	Header http.Header
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("backend response is not valid JSON: %v", e.Err)
}

func classifyUpstreamError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
}
