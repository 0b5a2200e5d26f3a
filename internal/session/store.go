// Package session keeps per-browser login state: the OAuth token and the
// pending OAuth state parameter.
//
// The browser only holds a signed random id (see Manager). Session data lives
// in a Store: MemoryStore for a single instance, RedisStore when several
// instances sit behind a load balancer.
package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Data is what a session stores.
type Data struct {
	// Token is the user's OAuth token; nil until login completes.
	Token *oauth2.Token `json:"token,omitempty"`

	// OAuthState is the state sent with the pending authorization request.
	OAuthState string `json:"oauth_state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Authenticated reports whether login has completed.
func (d *Data) Authenticated() bool {
	return d != nil && d.Token != nil
}

// Store persists session data by id.
type Store interface {
	// Load returns the data for id or ErrNotFound.
	Load(ctx context.Context, id string) (*Data, error)
	// Save writes data for id, replacing any previous value, expiring after ttl.
	Save(ctx context.Context, id string, data *Data, ttl time.Duration) error
	// Delete removes id. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}
