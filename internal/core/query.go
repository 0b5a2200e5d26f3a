package core

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidKey is returned when an identifier does not have the shape of a
// remote entity id and therefore cannot be placed into a filter or path.
var ErrInvalidKey = errors.New("invalid identifier")

// idPattern matches the identifiers the platform hands out (hex, GUIDs and
// similar opaque tokens).
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can be safely interpolated into an OData filter
// or a resource path.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// quoteODataString renders s as an OData string literal.
func quoteODataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// IDFilter builds the disjunction `id eq 'k1' or id eq 'k2' ...` for keys.
// Every key is validated first; the first invalid key fails the whole filter.
func IDFilter(keys []string) (string, error) {
	if len(keys) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if !ValidID(k) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, k)
		}
		parts = append(parts, "id eq "+quoteODataString(k))
	}
	return strings.Join(parts, " or "), nil
}

// KeySet is a de-duplicated set of foreign-key values.
type KeySet map[string]struct{}

// Add inserts *key when it is non-nil and non-empty.
func (s KeySet) Add(key *string) {
	if key == nil || *key == "" {
		return
	}
	s[*key] = struct{}{}
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// chunk splits keys into consecutive groups of at most size elements.
func chunk(keys []string, size int) [][]string {
	if size <= 0 {
		size = len(keys)
	}
	var out [][]string
	for len(keys) > 0 {
		n := min(size, len(keys))
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}
