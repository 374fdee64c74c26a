package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopsphere/shopauth/bootstrap"
	"github.com/shopsphere/shopauth/gateway"
	"github.com/shopsphere/shopauth/internal/authtest"
	autherrors "github.com/shopsphere/shopauth/internal/errors"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/shopapi"
	"github.com/shopsphere/shopauth/token/refresh"
	"github.com/shopsphere/shopauth/tokenstore/repofakes"
)

type stubProfile struct {
	user  session.User
	err   error
	calls int
}

func (s *stubProfile) Profile(ctx context.Context) (session.User, error) {
	s.calls++
	if s.err != nil {
		return session.User{}, s.err
	}
	return s.user, nil
}

func TestBootstrapper_NoStoredToken(t *testing.T) {
	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	profile := &stubProfile{}

	b, err := bootstrap.New(store, tokens, profile)
	require.NoError(t, err)

	require.True(t, b.Loading())
	select {
	case <-b.Ready():
		t.Fatal("must not be ready before Run")
	default:
	}

	require.NoError(t, b.Run(context.Background()))

	require.False(t, b.Loading())
	select {
	case <-b.Ready():
	default:
		t.Fatal("ready must be closed after Run")
	}
	require.False(t, store.Active())
	require.Zero(t, profile.calls, "no token means no network call")
}

func TestBootstrapper_DefinitiveRejectionClearsToken(t *testing.T) {
	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	require.NoError(t, tokens.Save("stale-token"))

	profile := &stubProfile{err: autherrors.Wrapf(autherrors.ErrAuthExpired, "status 401")}
	b, err := bootstrap.New(store, tokens, profile)
	require.NoError(t, err)

	require.NoError(t, b.Run(context.Background()))

	require.False(t, store.Active())
	persisted, err := tokens.Load()
	require.NoError(t, err)
	require.Empty(t, persisted, "a rejected token must be cleared")
}

func TestBootstrapper_TransientFailureKeepsToken(t *testing.T) {
	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	require.NoError(t, tokens.Save("possibly-fine-token"))

	profile := &stubProfile{err: autherrors.Wrapf(autherrors.ErrTransient, "connection refused")}
	b, err := bootstrap.New(store, tokens, profile)
	require.NoError(t, err)

	require.NoError(t, b.Run(context.Background()))

	require.False(t, store.Active())
	persisted, err := tokens.Load()
	require.NoError(t, err)
	require.Equal(t, "possibly-fine-token", persisted, "a network blip must not log the user out")
}

func TestBootstrapper_RunOnce(t *testing.T) {
	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	require.NoError(t, tokens.Save("token"))

	profile := &stubProfile{user: session.User{Username: "alice"}}
	b, err := bootstrap.New(store, tokens, profile)
	require.NoError(t, err)

	require.NoError(t, b.Run(context.Background()))
	require.NoError(t, b.Run(context.Background()))
	require.Equal(t, 1, profile.calls, "only the first Run does work")
}

func TestBootstrapper_RequiredDependencies(t *testing.T) {
	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	profile := &stubProfile{}

	_, err := bootstrap.New(nil, tokens, profile)
	require.Error(t, err)
	_, err = bootstrap.New(store, nil, profile)
	require.Error(t, err)
	_, err = bootstrap.New(store, tokens, nil)
	require.Error(t, err)
}

// Full-stack restore against the fake backend: the persisted token is expired,
// the gateway refreshes it during the profile fetch, and the restored session
// carries the fresh token.
func TestBootstrapper_RestoresSessionThroughRefresh(t *testing.T) {
	backend := authtest.NewServer()
	defer backend.Close()
	backend.AddUser(authtest.UserFixture{Username: "alice", Password: "pw", Shops: []string{"alpha", "beta"}})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	req, err := http.NewRequest(http.MethodGet, backend.URL, nil)
	require.NoError(t, err)
	jar.SetCookies(req.URL, []*http.Cookie{backend.IssueRefreshCredential("alice")})

	expired := backend.IssueToken("alice")
	backend.ExpireToken(expired)

	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	require.NoError(t, tokens.Save(expired))

	manager, err := refresh.NewManager(client, store, tokens, backend.URL)
	require.NoError(t, err)
	gw, err := gateway.New(client, store, tokens, manager)
	require.NoError(t, err)
	api, err := shopapi.New(backend.URL, client, gw, store, tokens)
	require.NoError(t, err)

	b, err := bootstrap.New(store, tokens, api)
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	sess, ok := store.Current()
	require.True(t, ok, "session must be restored")
	require.Equal(t, "alice", sess.User.Username)
	require.Len(t, sess.User.Shops, 2)
	require.NotEqual(t, expired, sess.AccessToken, "session must carry the refreshed token")
	require.Equal(t, 1, backend.RefreshCalls())
}

// Full-stack rejection: expired token and a dead refresh credential mean the
// stored token is definitively invalid and must be cleared.
func TestBootstrapper_FullStackRejectionClearsToken(t *testing.T) {
	backend := authtest.NewServer()
	defer backend.Close()
	backend.AddUser(authtest.UserFixture{Username: "alice", Password: "pw", Shops: []string{"alpha"}})
	backend.FailRefresh(true)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	expired := backend.IssueToken("alice")
	backend.ExpireToken(expired)

	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()
	require.NoError(t, tokens.Save(expired))

	manager, err := refresh.NewManager(client, store, tokens, backend.URL)
	require.NoError(t, err)
	gw, err := gateway.New(client, store, tokens, manager)
	require.NoError(t, err)
	api, err := shopapi.New(backend.URL, client, gw, store, tokens)
	require.NoError(t, err)

	b, err := bootstrap.New(store, tokens, api)
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	require.False(t, store.Active())
	persisted, err := tokens.Load()
	require.NoError(t, err)
	require.Empty(t, persisted)
}
