// Package shopapi is the typed client for the ShopSphere authentication API.
// Credentialed endpoints go through the gateway (bearer token plus one-shot
// refresh-and-retry); login, register and logout use the bare http.Client
// because they establish or tear down the credentials themselves.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shopsphere/shopauth/gateway"
	autherrors "github.com/shopsphere/shopauth/internal/errors"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/tokenstore"
	"github.com/shopsphere/shopauth/validation"
)

// Client calls the ShopSphere auth endpoints and keeps the session store and
// persisted token in sync with the results.
type Client struct {
	baseURL   string
	http      *http.Client
	gw        *gateway.Gateway
	store     *session.Store
	tokens    tokenstore.Repo
	validator *validation.Validator
}

// New creates an API client. The http.Client must be the same cookie-jarred
// client the gateway and refresh manager use.
func New(baseURL string, httpClient *http.Client, gw *gateway.Gateway, store *session.Store, tokens tokenstore.Repo) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("[shopapi.New] base URL is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("[shopapi.New] http client is required")
	}
	if gw == nil {
		return nil, fmt.Errorf("[shopapi.New] gateway is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[shopapi.New] session store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[shopapi.New] token repo is required")
	}
	return &Client{
		baseURL:   baseURL,
		http:      httpClient,
		gw:        gw,
		store:     store,
		tokens:    tokens,
		validator: validation.NewValidator(),
	}, nil
}

// envelope is the fixed response shape of the ShopSphere API.
type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
}

type authData struct {
	User        session.User `json:"user"`
	AccessToken string       `json:"accessToken"`
}

// RegisterParams is the payload for account creation. Shops are plain slugs;
// the server assigns display names.
type RegisterParams struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Shops    []string `json:"shops"`
}

// LoginParams is the payload for sign-in.
type LoginParams struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Register creates an account and signs the user in. Input is validated
// locally first; a validation failure never reaches the network.
func (c *Client) Register(ctx context.Context, params RegisterParams) (session.User, error) {
	if err := c.validator.ValidateUsername(params.Username); err != nil {
		return session.User{}, err
	}
	if err := c.validator.ValidatePassword(params.Password); err != nil {
		return session.User{}, err
	}
	shops, err := c.validator.ValidateShopNames(params.Shops)
	if err != nil {
		return session.User{}, err
	}
	params.Shops = shops

	return c.authenticate(ctx, "/api/auth/register", params, "registration failed")
}

// Login signs the user in with username and password. RememberMe extends the
// lifetime of the server-held refresh credential.
func (c *Client) Login(ctx context.Context, params LoginParams) (session.User, error) {
	if strings.TrimSpace(params.Username) == "" {
		return session.User{}, autherrors.Wrapf(autherrors.ErrValidation, "username is required")
	}
	if params.Password == "" {
		return session.User{}, autherrors.Wrapf(autherrors.ErrValidation, "password is required")
	}

	return c.authenticate(ctx, "/api/auth/login", params, "login failed")
}

func (c *Client) authenticate(ctx context.Context, path string, body any, failureMsg string) (session.User, error) {
	env, status, err := c.postJSON(ctx, c.baseURL+path, body)
	if err != nil {
		return session.User{}, err
	}
	if status < 200 || status > 299 {
		if env.Message != "" {
			return session.User{}, fmt.Errorf("%s: %s", failureMsg, env.Message)
		}
		return session.User{}, fmt.Errorf("%s: status %d", failureMsg, status)
	}

	var data authData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return session.User{}, fmt.Errorf("%s: decoding response: %w", failureMsg, err)
	}

	if data.AccessToken != "" {
		if err := c.tokens.Save(data.AccessToken); err != nil {
			log.Warn().Err(err).Msg("failed to persist access token")
		}
	}
	c.store.Set(data.User, data.AccessToken)
	log.Info().Str("username", data.User.Username).Msg("signed in")
	return data.User, nil
}

// Logout clears the server-side refresh credential and destroys the local
// session. Local state is cleared even when the server call fails; calling
// Logout with no session is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	persisted, _ := c.tokens.Load()
	if !c.store.Active() && persisted == "" {
		return nil
	}

	if _, _, err := c.postJSON(ctx, c.baseURL+"/api/auth/logout", nil); err != nil {
		log.Warn().Err(err).Msg("logout request failed, clearing local session anyway")
	}

	c.store.Clear()
	if err := c.tokens.Clear(); err != nil {
		return autherrors.Wrapf(err, "[Client.Logout] clearing persisted token")
	}
	return nil
}

// Profile fetches the authenticated user's profile through the gateway.
// Returns ErrAuthExpired for a definitive 401 (after the gateway's one
// refresh-and-retry), ErrAccessDenied for 403, and ErrTransient for network
// or server errors.
func (c *Client) Profile(ctx context.Context) (session.User, error) {
	resp, err := c.gw.Do(ctx, http.MethodGet, c.baseURL+"/api/auth/profile", nil)
	if err != nil {
		return session.User{}, err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, "[Client.Profile]"); err != nil {
		return session.User{}, err
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return session.User{}, autherrors.Wrapf(autherrors.ErrTransient, "[Client.Profile] %v", err)
	}

	user, err := decodeUser(env.Data)
	if err != nil {
		return session.User{}, autherrors.Wrapf(autherrors.ErrTransient, "[Client.Profile] %v", err)
	}
	return user, nil
}

// RefreshUserProfile re-fetches the profile and updates the session in place.
// Failures leave the session untouched: a stale profile is better than
// logging the user out over a blip.
func (c *Client) RefreshUserProfile(ctx context.Context) error {
	user, err := c.Profile(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("profile refresh failed, keeping cached profile")
		return err
	}
	c.store.UpdateProfile(user)
	return nil
}

// Shop performs the authoritative per-tenant authorization check and returns
// the shop payload on success. 2xx means authorized; 401/403 mean denied.
func (c *Client) Shop(ctx context.Context, shopName string) (json.RawMessage, error) {
	if shopName == "" {
		return nil, autherrors.Wrapf(autherrors.ErrValidation, "shop name is required")
	}

	resp, err := c.gw.Do(ctx, http.MethodGet, c.baseURL+"/api/auth/shop/"+shopName, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, "[Client.Shop]"); err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrTransient, "[Client.Shop] %v", err)
	}
	return env.Data, nil
}

// postJSON sends an uncredentialed JSON POST with the shared cookie jar. The
// envelope is decoded best-effort so callers can surface the server message.
func (c *Client) postJSON(ctx context.Context, url string, body any) (envelope, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return envelope{}, 0, fmt.Errorf("[Client.postJSON] marshal: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return envelope{}, 0, fmt.Errorf("[Client.postJSON] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, 0, autherrors.Wrapf(autherrors.ErrTransient, "[Client.postJSON] %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return envelope{}, resp.StatusCode, autherrors.Wrapf(autherrors.ErrTransient, "[Client.postJSON] decode: %v", err)
	}
	return env, resp.StatusCode, nil
}

func statusError(status int, context string) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusUnauthorized:
		return autherrors.Wrapf(autherrors.ErrAuthExpired, "%s status %d", context, status)
	case status == http.StatusForbidden:
		return autherrors.Wrapf(autherrors.ErrAccessDenied, "%s status %d", context, status)
	default:
		return autherrors.Wrapf(autherrors.ErrTransient, "%s status %d", context, status)
	}
}

func decodeEnvelope(r io.Reader) (envelope, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return env, nil
}

// decodeUser tolerates both envelope shapes the API produces: the user nested
// under data.user, or the user object directly as data.
func decodeUser(data json.RawMessage) (session.User, error) {
	var nested struct {
		User *session.User `json:"user"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.User != nil && nested.User.Username != "" {
		return *nested.User, nil
	}

	var user session.User
	if err := json.Unmarshal(data, &user); err != nil {
		return session.User{}, fmt.Errorf("decoding user payload: %w", err)
	}
	if user.Username == "" {
		return session.User{}, fmt.Errorf("user payload missing username")
	}
	return user, nil
}
