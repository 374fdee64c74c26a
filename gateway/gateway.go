// Package gateway issues authenticated requests to the ShopSphere API,
// attaching the bearer token from the session store and transparently
// refreshing it once when the server answers 401.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	autherrors "github.com/shopsphere/shopauth/internal/errors"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/tokenstore"
)

// Refresher exchanges the server-held refresh credential for a new access
// token. Implemented by token/refresh.Manager.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Gateway wraps an http.Client with bearer authentication and a one-shot
// refresh-and-retry on 401. The http.Client must carry a cookie jar so the
// refresh credential cookie travels with every request.
type Gateway struct {
	client    *http.Client
	store     *session.Store
	tokens    tokenstore.Repo
	refresher Refresher
}

// New creates a Gateway. All dependencies are required.
func New(client *http.Client, store *session.Store, tokens tokenstore.Repo, refresher Refresher) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("[gateway.New] http client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[gateway.New] session store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[gateway.New] token repo is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("[gateway.New] refresher is required")
	}
	return &Gateway{client: client, store: store, tokens: tokens, refresher: refresher}, nil
}

// token returns the credential for the next request: the live session token,
// or the persisted one before a session exists (the bootstrap profile fetch).
func (g *Gateway) token() string {
	if token := g.store.Token(); token != "" {
		return token
	}
	token, err := g.tokens.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted token")
		return ""
	}
	return token
}

// Do sends a JSON request to an absolute API URL. When a token is present and
// the response is 401, it performs exactly one refresh followed by one retry;
// if the refresh fails the original 401 response is returned unchanged. The
// retried response is returned as-is regardless of status, so a request never
// sees more than one refresh attempt.
func (g *Gateway) Do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("[Gateway.Do] marshal body: %w", err)
		}
	}

	requestID := uuid.New().String()
	token := g.token()

	resp, err := g.attempt(ctx, method, url, payload, token)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrTransient, "[Gateway.Do] %s %s (request %s): %v", method, url, requestID, err)
	}

	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}

	log.Debug().
		Str("request_id", requestID).
		Str("url", url).
		Msg("access token rejected, attempting refresh")

	newToken, err := g.refresher.Refresh(ctx)
	if err != nil {
		// Fail closed happened inside the refresher; hand the caller the
		// original failing response.
		return resp, nil
	}

	resp.Body.Close()
	retryResp, err := g.attempt(ctx, method, url, payload, newToken)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrTransient, "[Gateway.Do] retry %s %s (request %s): %v", method, url, requestID, err)
	}
	return retryResp, nil
}

func (g *Gateway) attempt(ctx context.Context, method, url string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return g.client.Do(req)
}
