package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/valter-silva-au/knc/internal/core"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// StatusError is returned for non-2xx platform responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// PlatformClient issues JSON requests against the knowledge network platform.
// It implements core.PlatformTransport.
type PlatformClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPlatformClient creates a client for baseURL. A zero timeout leaves
// deadlines to the request context.
func NewPlatformClient(baseURL string, timeout time.Duration) *PlatformClient {
	return &PlatformClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ core.PlatformTransport = (*PlatformClient)(nil)

// Get sends a GET request for path, relative to the base URL.
func (c *PlatformClient) Get(ctx context.Context, path string, headers map[string]string) (*core.PlatformResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil, headers)
}

// Post sends body as JSON to path.
func (c *PlatformClient) Post(ctx context.Context, path string, body any, headers map[string]string) (*core.PlatformResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, path, reader, headers)
}

func (c *PlatformClient) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*core.PlatformResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: bodyExcerpt(data)}
	}
	return &core.PlatformResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// bodyExcerpt trims a response body to at most maxErrorBody bytes without
// splitting a UTF-8 sequence.
func bodyExcerpt(data []byte) string {
	excerpt := strings.ToValidUTF8(strings.TrimSpace(string(data)), "\uFFFD")
	if len(excerpt) <= maxErrorBody {
		return excerpt
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
		cut--
	}
	return excerpt[:cut] + "..."
}
