// Package tapkey talks to the lock platform's Web API on behalf of a signed-in
// user.
//
// Authorizer drives the OAuth authorization-code flow and hands out a Client
// per request. Client implements core.Client: one authenticated GET, raw status
// and body back, everything else is the caller's concern.
package tapkey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/lockexport/internal/core"
)

// DefaultMaxBodySize caps a single response body. A page of 500 log entries
// is well below 1MB.
const DefaultMaxBodySize = 32 << 20

// ErrResponseTooLarge is returned when a response body exceeds the cap.
var ErrResponseTooLarge = errors.New("response body too large")

// Client performs authenticated GETs relative to the API base URL.
type Client struct {
	http    *http.Client
	baseURL string
	maxBody int64
}

var _ core.Client = (*Client)(nil)

// NewClient wraps httpClient, which must already attach credentials.
// baseURL is the versioned API root, e.g. "https://my.tapkey.com/api/v1/".
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		maxBody: DefaultMaxBodySize,
	}
}

// Get implements core.Client.
func (c *Client) Get(ctx context.Context, path string, q core.Query) (int, []byte, error) {
	u := c.baseURL + strings.TrimPrefix(path, "/")
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return 0, nil, ErrResponseTooLarge
	}
	return resp.StatusCode, body, nil
}
