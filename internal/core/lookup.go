package core

import (
	"context"
	"strings"

	"github.com/JonMunkholm/lockexport/internal/logging"
)

// DefaultLookupChunkSize bounds the number of ids placed into one filter
// expression. The remote API does not document a URL length ceiling, so large
// key sets are split rather than sent as a single disjunction.
const DefaultLookupChunkSize = 40

// ResolveByID fetches the members of the collection at path whose id is in
// keys. An empty key set issues no request.
//
// Keys that are not well-formed identifiers are skipped with a warning; the
// rows referencing them render with empty fields.
//
// Keys are sent in sorted chunks of at most chunkSize ids, one request per
// chunk. Result order is unspecified; callers index the result by id.
func ResolveByID[T any](ctx context.Context, client Client, path string, keys KeySet, selectFields []string, chunkSize int) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultLookupChunkSize
	}

	valid := make([]string, 0, len(keys))
	for _, k := range keys.Sorted() {
		if !ValidID(k) {
			logging.FromContext(ctx).Warn("skipping malformed reference id", "path", path, "id", k)
			continue
		}
		valid = append(valid, k)
	}

	var out []T
	for _, ids := range chunk(valid, chunkSize) {
		filter, err := IDFilter(ids)
		if err != nil {
			return nil, &RetrievalError{Path: path, Err: err}
		}
		q := Query{}.
			With(ParamFilter, filter).
			With(ParamSelect, strings.Join(selectFields, ",")).
			WithInt(ParamTop, len(ids))

		items, err := getArray[T](ctx, client, path, q)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}
