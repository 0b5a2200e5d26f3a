package core

// paging.go implements retrieval of a complete remote collection through
// $skip/$top pagination.
//
// The remote API does not report a total count, so the end of the collection
// is detected by a short page: a page with fewer than pageSize items is the
// last one. When the collection size is an exact multiple of pageSize the
// final request returns an empty page, costing one extra round trip but still
// terminating correctly.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JonMunkholm/lockexport/internal/logging"
)

// DefaultPageSize is the page size used when callers pass a non-positive one.
const DefaultPageSize = 500

// errNotArray marks a 2xx response whose body is not a JSON array.
var errNotArray = errors.New("response body is not a JSON array")

// FetchAll retrieves every item of the collection at path, page by page.
//
// q carries the caller's $filter/$select/$orderby; $skip and $top are added per
// page. Any failed page aborts the retrieval and nothing is returned.
func FetchAll[T any](ctx context.Context, client Client, path string, q Query, pageSize int) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := logging.WithFields(ctx, "path", path, "page_size", pageSize)

	var all []T
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &RetrievalError{Path: path, Err: err}
		}

		pageQuery := Query{}.
			WithInt(ParamSkip, pageSize*(page-1)).
			WithInt(ParamTop, pageSize)
		pageQuery = append(pageQuery, q...)

		items, err := getArray[T](ctx, client, path, pageQuery)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		logger.Debug("fetched page", "page", page, "items", len(items), "total", len(all))

		if len(items) < pageSize {
			return all, nil
		}
	}
}

// getArray issues one GET and decodes a JSON array body into []T.
func getArray[T any](ctx context.Context, client Client, path string, q Query) ([]T, error) {
	body, err := get(ctx, client, path, q)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &RetrievalError{Path: path, Err: errNotArray}
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &RetrievalError{Path: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return items, nil
}

// getObject issues one GET and decodes a JSON object body into T.
func getObject[T any](ctx context.Context, client Client, path string, q Query) (*T, error) {
	body, err := get(ctx, client, path, q)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &RetrievalError{Path: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &v, nil
}

// get issues one GET and maps transport errors and non-2xx statuses to
// RetrievalError.
func get(ctx context.Context, client Client, path string, q Query) ([]byte, error) {
	status, body, err := client.Get(ctx, path, q)
	if err != nil {
		return nil, &RetrievalError{Path: path, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &RetrievalError{Path: path, Status: status, Err: fmt.Errorf("status %d", status)}
	}
	return body, nil
}
