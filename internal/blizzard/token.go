package blizzard

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ExchangeFunc performs one client-credential exchange.
type ExchangeFunc func(ctx context.Context) (*oauth2.Token, error)

// TokenCache is a single-slot cache for the server-to-server bearer token.
// The mutex only guards the slot: two callers that both see a stale token
// will both exchange, and the later write wins. That duplicate exchange is
// harmless and cheaper than serialising every request behind a refresh.
type TokenCache struct {
	exchange ExchangeFunc
	margin   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache(exchange ExchangeFunc, margin time.Duration) *TokenCache {
	return &TokenCache{
		exchange: exchange,
		margin:   margin,
		now:      time.Now,
	}
}

func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

// Token returns the cached token while now < expiresAt - margin, otherwise
// exchanges for a new one.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.Unlock()

	if token != "" && c.now().Before(expiresAt.Add(-c.margin)) {
		return token, nil
	}

	tok, err := c.exchange(ctx)
	if err != nil {
		return "", fmt.Errorf("client credential exchange: %w", err)
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiresAt = tok.Expiry
	c.mu.Unlock()
	return tok.AccessToken, nil
}

// ClientCredentials exchanges against the Battle.net token endpoint with the
// given per-call timeout.
func ClientCredentials(clientID, clientSecret, tokenURL string, timeout time.Duration) ExchangeFunc {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	hc := &http.Client{Timeout: timeout}
	return func(ctx context.Context) (*oauth2.Token, error) {
		return cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, hc))
	}
}
