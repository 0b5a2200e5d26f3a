package tapkey

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/lockexport/internal/config"
	"github.com/JonMunkholm/lockexport/internal/logging"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when a client is requested without a stored token.
var ErrNoToken = errors.New("no oauth token in session")

// TokenSaver persists a token after it has been refreshed.
type TokenSaver func(ctx context.Context, tok *oauth2.Token) error

// Authorizer runs the authorization-code flow against the platform's identity
// server and builds per-user API clients.
type Authorizer struct {
	oauth   oauth2.Config
	apiBase string
	http    *http.Client
}

// NewAuthorizer creates an Authorizer from the platform settings. observer may
// be nil. Every remote call (token endpoint included) goes through the
// instrumented transport and is bounded by cfg.RequestTimeout.
func NewAuthorizer(cfg config.TapkeyConfig, observer RequestObserver) *Authorizer {
	return &Authorizer{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationEndpoint,
				TokenURL: cfg.TokenEndpoint,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		apiBase: cfg.APIBaseURL(),
		http: &http.Client{
			Transport: newInstrumentedTransport(http.DefaultTransport, observer),
			Timeout:   cfg.RequestTimeout,
		},
	}
}

// AuthCodeURL returns the login URL carrying state. redirectURL overrides the
// configured callback when non-empty.
func (a *Authorizer) AuthCodeURL(state, redirectURL string) string {
	return a.config(redirectURL).AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (a *Authorizer) Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("oauth exchange: missing authorization code")
	}
	cfg := a.config(redirectURL)
	tok, err := cfg.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}
	return tok, nil
}

// Client returns an API client authorized with tok. When the token is
// refreshed, save receives the new token so the session stays current.
func (a *Authorizer) Client(ctx context.Context, tok *oauth2.Token, save TokenSaver) (*Client, error) {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, ErrNoToken
	}
	src := &persistingTokenSource{
		ctx:  context.WithoutCancel(ctx),
		src:  a.oauth.TokenSource(a.oauthContext(ctx), tok),
		last: tok.AccessToken,
		save: save,
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: a.http.Transport},
		Timeout:   a.http.Timeout,
	}
	return NewClient(httpClient, a.apiBase), nil
}

func (a *Authorizer) config(redirectURL string) *oauth2.Config {
	cfg := a.oauth
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return &cfg
}

// oauthContext makes the oauth2 package use the instrumented client for
// token requests.
func (a *Authorizer) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.http)
}

// persistingTokenSource hands every newly issued access token to save.
// Save failures are logged; the request proceeds with the fresh token.
type persistingTokenSource struct {
	ctx  context.Context
	src  oauth2.TokenSource
	save TokenSaver

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken

	logger := logging.FromContext(p.ctx)
	logger.Info("oauth token refreshed", "expires_in", time.Until(tok.Expiry).Round(time.Second).String())
	if p.save != nil {
		if err := p.save(p.ctx, tok); err != nil {
			logger.Error("failed to persist refreshed token", "error", err)
		}
	}
	return tok, nil
}

// IsAuthError reports whether err means the user must sign in again: no
// token, or the identity server refused to refresh it.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNoToken) {
		return true
	}
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}
