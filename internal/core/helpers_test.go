package core

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordedRequest is one call seen by fakeClient.
type recordedRequest struct {
	Path  string
	Query Query
}

// fakeClient serves canned responses per path and records every request.
// Safe for the concurrent lookups issued by the exporter.
type fakeClient struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(path string, q Query) (int, []byte, error)
}

func (f *fakeClient) Get(_ context.Context, path string, q Query) (int, []byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Path: path, Query: q})
	f.mu.Unlock()
	return f.handle(path, q)
}

// requestsTo returns the requests whose path equals path.
func (f *fakeClient) requestsTo(path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeClient) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeAPI routes paths to collections. Collections are paged by $skip/$top and
// filtered by "id eq" disjunctions the same way the remote API does.
type fakeAPI struct {
	t           *testing.T
	collections map[string][]map[string]any
	objects     map[string]map[string]any
	statuses    map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:           t,
		collections: map[string][]map[string]any{},
		objects:     map[string]map[string]any{},
		statuses:    map[string]int{},
	}
}

func (a *fakeAPI) client() *fakeClient {
	return &fakeClient{handle: a.serve}
}

func (a *fakeAPI) serve(path string, q Query) (int, []byte, error) {
	if status, ok := a.statuses[path]; ok {
		return status, []byte(`{"error":"failed"}`), nil
	}
	if obj, ok := a.objects[path]; ok {
		return 200, mustJSON(a.t, obj), nil
	}
	items, ok := a.collections[path]
	if !ok {
		return 404, []byte(`{"error":"not found"}`), nil
	}

	if filter := q.Get(ParamFilter); strings.HasPrefix(filter, "id eq ") {
		wanted := map[string]bool{}
		for _, part := range strings.Split(filter, " or ") {
			wanted[strings.Trim(strings.TrimPrefix(part, "id eq "), "'")] = true
		}
		var matched []map[string]any
		for _, item := range items {
			if wanted[item["id"].(string)] {
				matched = append(matched, item)
			}
		}
		items = matched
	}

	skip, _ := strconv.Atoi(q.Get(ParamSkip))
	top := len(items)
	if v := q.Get(ParamTop); v != "" {
		top, _ = strconv.Atoi(v)
	}
	if skip > len(items) {
		skip = len(items)
	}
	end := min(skip+top, len(items))
	page := items[skip:end]
	if page == nil {
		page = []map[string]any{}
	}
	return 200, mustJSON(a.t, page), nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// logEntries builds n log entries with ids "e1".."en" and no references.
func logEntries(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"id":            "e" + strconv.Itoa(i+1),
			"entryNo":       i + 1,
			"lockTimestamp": "2024-01-01T00:00:00Z",
			"receivedAt":    "2024-01-01T00:00:01Z",
			"contactId":     nil,
			"boundCardId":   nil,
			"boundLockId":   nil,
		}
	}
	return out
}

// recordingMetrics counts observations.
type recordingMetrics struct {
	mu             sync.Mutex
	decodeFailures int
	exports        []string
}

func (m *recordingMetrics) ObserveExport(kind ScopeKind, status string, rows int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, string(kind)+":"+status+":"+strconv.Itoa(rows))
}

func (m *recordingMetrics) IncDecodeFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodeFailures++
}
