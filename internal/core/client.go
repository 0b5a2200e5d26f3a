package core

// client.go defines the one capability the export pipeline needs from the
// outside world: an authenticated GET against the remote API.
//
// Token handling, refresh and the HTTP transport live behind this interface
// (see internal/tapkey). The core never sees credentials.

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Client performs an authenticated GET against the remote API.
//
// path is relative to the API base (e.g. "Owners/123/LogEntries"). The returned
// status is the HTTP status code and body the raw response payload. A non-nil
// error means the request never produced a response (transport failure,
// cancelled context).
type Client interface {
	Get(ctx context.Context, path string, q Query) (status int, body []byte, err error)
}

// Query is an ordered list of OData query parameters.
//
// Order is preserved on encode so request URLs are stable in logs and tests.
type Query []QueryParam

// QueryParam is a single key/value query parameter.
type QueryParam struct {
	Key   string
	Value string
}

// With returns a copy of q with key=value appended. Empty values are skipped.
func (q Query) With(key, value string) Query {
	if value == "" {
		return q
	}
	out := make(Query, len(q), len(q)+1)
	copy(out, q)
	return append(out, QueryParam{Key: key, Value: value})
}

// WithInt returns a copy of q with key set to the decimal form of n.
func (q Query) WithInt(key string, n int) Query {
	return q.With(key, strconv.Itoa(n))
}

// Get returns the first value for key, or "".
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Encode renders the query string. Spaces become %20 rather than '+', which
// OData filter parsers do not all accept.
func (q Query) Encode() string {
	if len(q) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQuery(p.Key))
		b.WriteByte('=')
		b.WriteString(escapeQuery(p.Value))
	}
	return b.String()
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// OData query parameter names.
const (
	ParamSkip    = "$skip"
	ParamTop     = "$top"
	ParamFilter  = "$filter"
	ParamSelect  = "$select"
	ParamOrderBy = "$orderby"
)
