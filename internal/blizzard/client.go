// Package blizzard talks to the Battle.net game-data and profile APIs.
// Upstream payloads are decoded into wire structs and validated here, so the
// rest of the service only ever sees domain types.
package blizzard

import (
	"context"
	"net/http"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/go-resty/resty/v2"
)

const userAgent = "achievement-atlas-api/1.0"

type Options struct {
	Region  string
	Locale  string
	Timeout time.Duration
}

func (o Options) staticNamespace() string  { return "static-" + o.Region }
func (o Options) profileNamespace() string { return "profile-" + o.Region }

func newRESTClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
}

// withClientToken attaches the cached client-credential token to every
// request issued by c.
func withClientToken(c *resty.Client, tokens *TokenCache) *resty.Client {
	return c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		token, err := tokens.Token(r.Context())
		if err != nil {
			return err
		}
		r.SetAuthToken(token)
		return nil
	})
}

// get issues a GET and decodes a 2xx body into result. Transport failures and
// non-2xx answers become UPSTREAM_ERROR, except 404 and 403 which keep their
// meaning.
func get(ctx context.Context, r *resty.Request, path string, result any) error {
	resp, err := r.SetContext(ctx).
		ForceContentType("application/json").
		SetResult(result).
		Get(path)
	if err != nil {
		return apperr.Upstream("request %s failed: %v", path, err)
	}
	if resp.IsError() {
		switch resp.StatusCode() {
		case http.StatusNotFound:
			return apperr.NotFound("not found upstream")
		case http.StatusForbidden:
			return apperr.NotPublic("not visible upstream")
		}
		return apperr.Upstream("blizzard API error: %d", resp.StatusCode())
	}
	return nil
}
