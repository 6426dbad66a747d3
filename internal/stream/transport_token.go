package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenFunc fetches a short-lived stream token. Called before a connection
// attempt whenever no usable cached token exists.
type TokenFunc func(ctx context.Context) (string, error)

// tokenExpiryLeeway is how close to expiry a cached token may be before it
// is discarded: a token that dies mid-handshake buys nothing.
const tokenExpiryLeeway = 30 * time.Second

// TokenTransport connects with a short-lived token in the URL query, for
// environments where the push endpoint cannot read custom headers. Tokens
// that carry a JWT exp claim are cached until near expiry; opaque tokens are
// treated as single-use and refreshed on every attempt.
type TokenTransport struct {
	URL    string
	Token  TokenFunc
	Client *http.Client

	mu     sync.Mutex
	cached string
}

func (t *TokenTransport) Connect(ctx context.Context) (io.ReadCloser, error) {
	token, err := t.usableToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain stream token: %w", err)
	}

	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("streamToken", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient().Do(req)
	if err != nil {
		t.invalidate()
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		// The backend may have rejected the token; never reuse it.
		t.invalidate()
		return nil, fmt.Errorf("connect stream: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// usableToken returns a cached token still comfortably before its exp, or
// fetches a fresh one. The server contract is fetch-before-each-attempt;
// this deliberately relaxes it for JWT tokens with a readable exp claim,
// and invalidate() restores it whenever the endpoint rejects one.
func (t *TokenTransport) usableToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	cached := t.cached
	t.mu.Unlock()

	if cached != "" && tokenStillValid(cached, time.Now()) {
		return cached, nil
	}

	token, err := t.Token(ctx)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.cached = token
	t.mu.Unlock()
	return token, nil
}

func (t *TokenTransport) invalidate() {
	t.mu.Lock()
	t.cached = ""
	t.mu.Unlock()
}

// tokenStillValid inspects a JWT exp claim without verifying the signature;
// verification is the backend's job, we only avoid connecting with a token
// we already know is stale. Opaque tokens report false so they are always
// refreshed.
func tokenStillValid(token string, now time.Time) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.After(now.Add(tokenExpiryLeeway))
}

func (t *TokenTransport) httpClient() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}
