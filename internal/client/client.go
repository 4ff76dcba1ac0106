// Package client is the resty-based API client. Every JSON call runs
// through Do, which attaches the session's bearer token, bounds the
// request with a hard timeout and retries exactly once after a
// refresh when the server answers 401.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"zm-cli/internal/errs"
	"zm-cli/internal/session"
	"zm-cli/pkg/models"
)

const requestTimeout = 30 * time.Second

type ZMClient struct {
	http    *resty.Client
	session *session.Manager
}

func New(sm *session.Manager) *ZMClient {
	r := resty.New()
	r.SetTimeout(requestTimeout)
	r.SetHeader("Accept", "application/json")
	return &ZMClient{http: r, session: sm}
}

// Session exposes the manager for callers that need auth state.
func (c *ZMClient) Session() *session.Manager {
	return c.session
}

// Do executes build with the session's auth policy. It may mutate
// session state as a side effect: a 401 triggers one refresh cycle and
// one retry, after which the session is cleared and the call fails
// with errs.ErrAuthFailed.
func (c *ZMClient) Do(ctx context.Context, build func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	return c.execute(ctx, build, true)
}

func (c *ZMClient) execute(ctx context.Context, build func(*resty.Request) (*resty.Response, error), allowRetry bool) (*resty.Response, error) {
	if err := c.session.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	if tok, ok := c.session.ValidToken(ctx); ok && tok != session.NoAuthToken {
		req.SetAuthToken(tok)
	}

	resp, err := build(req)
	if err != nil {
		return nil, errs.FromTransport(err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		if allowRetry {
			if _, err := c.session.RefreshNow(ctx); err == nil {
				// Hard cap of one retry: a server that always 401s must
				// not loop.
				return c.execute(ctx, build, false)
			}
			// RefreshNow already cleared the session.
			return nil, errs.ErrAuthFailed
		}
		// Retry exhausted: the refreshed token was rejected too.
		c.session.InvalidateAuth()
		return nil, errs.ErrAuthFailed
	}

	if resp.IsError() {
		msg := models.ErrorMessage(resp.Body())
		return nil, &errs.RequestError{
			Kind:       errs.KindHTTP,
			StatusCode: resp.StatusCode(),
			Message:    msg,
		}
	}

	return resp, nil
}

// apiURL returns the session's current API root.
func (c *ZMClient) apiURL() string {
	return c.session.APIURL()
}
