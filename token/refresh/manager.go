// Package refresh keeps the short-lived access token alive, reactively when a
// request hits 401 and proactively on a fixed interval while a session exists.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	autherrors "github.com/shopsphere/shopauth/internal/errors"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/tokenstore"
)

const defaultInterval = 10 * time.Minute

// Manager handles access token refresh against the cookie-authenticated
// refresh endpoint. Concurrent callers share a single in-flight attempt, so a
// reactive refresh racing the keepalive loop results in one network call and
// one token install.
type Manager struct {
	client     *http.Client
	store      *session.Store
	tokens     tokenstore.Repo
	refreshURL string
	interval   time.Duration
	group      singleflight.Group
}

// ManagerOption modifies a Manager at construction time.
type ManagerOption func(*Manager)

// WithInterval sets the keepalive refresh interval (default 10 minutes).
func WithInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// NewManager creates a refresh manager. The http.Client must share its cookie
// jar with the rest of the client so the refresh credential cookie is sent.
func NewManager(client *http.Client, store *session.Store, tokens tokenstore.Repo, apiBaseURL string, options ...ManagerOption) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("[NewManager] http client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[NewManager] session store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[NewManager] token repo is required")
	}
	if apiBaseURL == "" {
		return nil, fmt.Errorf("[NewManager] API base URL is required")
	}

	m := &Manager{
		client:     client,
		store:      store,
		tokens:     tokens,
		refreshURL: apiBaseURL + "/api/auth/refresh-token",
		interval:   defaultInterval,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Refresh exchanges the refresh credential for a new access token. On success
// the token is persisted and installed in the session store. On any failure
// the session and persisted token are cleared: an un-refreshable session is
// treated as no session.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	token, err, shared := m.group.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug().Msg("refresh result shared with concurrent caller")
	}
	return token.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, nil)
	if err != nil {
		return "", autherrors.Wrapf(err, "[Manager.refresh] build request")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.failClosed()
		return "", autherrors.Wrapf(autherrors.ErrAuthInvalid, "[Manager.refresh] refresh request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.failClosed()
		return "", autherrors.Wrapf(autherrors.ErrAuthInvalid, "[Manager.refresh] refresh rejected with status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		m.failClosed()
		return "", autherrors.Wrapf(autherrors.ErrAuthInvalid, "[Manager.refresh] decode response: %v", err)
	}
	if result.Data.AccessToken == "" {
		m.failClosed()
		return "", autherrors.Wrapf(autherrors.ErrAuthInvalid, "[Manager.refresh] empty access token in response")
	}

	if err := m.tokens.Save(result.Data.AccessToken); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed token")
	}
	m.store.UpdateToken(result.Data.AccessToken)
	log.Debug().Msg("access token refreshed")
	return result.Data.AccessToken, nil
}

// failClosed logs the user out client-side: clears the in-memory session and
// the persisted token.
func (m *Manager) failClosed() {
	m.store.Clear()
	if err := m.tokens.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear persisted token")
	}
}

// Run keeps the session alive with a periodic proactive refresh. The ticker
// only runs while a session exists; when the session ends the loop parks
// until a new session appears. Returns when ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		if err := m.waitForSession(ctx); err != nil {
			return
		}
		if err := m.keepAlive(ctx); err != nil {
			return
		}
	}
}

func (m *Manager) waitForSession(ctx context.Context) error {
	for !m.store.Active() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.store.Changed():
		}
	}
	return nil
}

func (m *Manager) keepAlive(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.store.Changed():
			if !m.store.Active() {
				return nil
			}
		case <-ticker.C:
			if !m.store.Active() {
				return nil
			}
			if _, err := m.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("keepalive refresh failed, session cleared")
				return nil
			}
		}
	}
}
