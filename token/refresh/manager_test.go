package refresh_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopsphere/shopauth/internal/authtest"
	autherrors "github.com/shopsphere/shopauth/internal/errors"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/token/refresh"
	"github.com/shopsphere/shopauth/tokenstore/repofakes"
)

type fixture struct {
	backend *authtest.Server
	client  *http.Client
	store   *session.Store
	tokens  *repofakes.FakeTokenRepo
	manager *refresh.Manager
}

func setup(t *testing.T, options ...refresh.ManagerOption) *fixture {
	t.Helper()

	backend := authtest.NewServer()
	t.Cleanup(backend.Close)
	backend.AddUser(authtest.UserFixture{Username: "alice", Password: "pw", Shops: []string{"alpha"}})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	// Plant the refresh credential cookie the way a login would.
	req, err := http.NewRequest(http.MethodGet, backend.URL, nil)
	require.NoError(t, err)
	jar.SetCookies(req.URL, []*http.Cookie{backend.IssueRefreshCredential("alice")})

	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()

	manager, err := refresh.NewManager(client, store, tokens, backend.URL, options...)
	require.NoError(t, err)

	return &fixture{
		backend: backend,
		client:  client,
		store:   store,
		tokens:  tokens,
		manager: manager,
	}
}

func (f *fixture) signIn(t *testing.T) string {
	t.Helper()
	token := f.backend.IssueToken("alice")
	f.store.Set(session.User{Username: "alice"}, token)
	require.NoError(t, f.tokens.Save(token))
	return token
}

func TestManager_RefreshSuccess(t *testing.T) {
	f := setup(t)
	old := f.signIn(t)

	newToken, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, newToken)
	require.NotEqual(t, old, newToken)

	require.Equal(t, newToken, f.store.Token(), "session carries the new token")
	persisted, err := f.tokens.Load()
	require.NoError(t, err)
	require.Equal(t, newToken, persisted, "new token is persisted")
}

func TestManager_RefreshFailureFailsClosed(t *testing.T) {
	f := setup(t)
	f.signIn(t)
	f.backend.FailRefresh(true)

	_, err := f.manager.Refresh(context.Background())
	require.ErrorIs(t, err, autherrors.ErrAuthInvalid)

	require.False(t, f.store.Active(), "session must be destroyed")
	persisted, loadErr := f.tokens.Load()
	require.NoError(t, loadErr)
	require.Empty(t, persisted, "persisted token must be cleared")
}

func TestManager_NetworkFailureFailsClosed(t *testing.T) {
	f := setup(t)
	f.signIn(t)
	f.backend.Close() // connection refused from here on

	_, err := f.manager.Refresh(context.Background())
	require.ErrorIs(t, err, autherrors.ErrAuthInvalid)
	require.False(t, f.store.Active())
}

func TestManager_ConcurrentRefreshesShareOneCall(t *testing.T) {
	f := setup(t)
	f.signIn(t)
	f.backend.SetRefreshDelay(100 * time.Millisecond)

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			results[i], errs[i] = f.manager.Refresh(context.Background())
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotEmpty(t, results[i], "every caller gets a token to retry with")
	}
	require.Equal(t, 1, f.backend.RefreshCalls(), "concurrent callers share one network call")
}

func TestManager_RunKeepsSessionAlive(t *testing.T) {
	f := setup(t, refresh.WithInterval(30*time.Millisecond))
	old := f.signIn(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.manager.Run(ctx)

	require.Eventually(t, func() bool {
		return f.backend.RefreshCalls() >= 2
	}, 2*time.Second, 10*time.Millisecond, "keepalive should refresh repeatedly")
	require.NotEqual(t, old, f.store.Token())
	require.True(t, f.store.Active())
}

func TestManager_RunStopsTickingWhenSessionEnds(t *testing.T) {
	f := setup(t, refresh.WithInterval(20*time.Millisecond))
	f.signIn(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.manager.Run(ctx)

	require.Eventually(t, func() bool {
		return f.backend.RefreshCalls() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	f.store.Clear()
	time.Sleep(50 * time.Millisecond)
	calls := f.backend.RefreshCalls()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, calls, f.backend.RefreshCalls(), "no refreshes after the session ends")
}

func TestManager_RunWaitsForSession(t *testing.T) {
	f := setup(t, refresh.WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.manager.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, f.backend.RefreshCalls(), "no session means no timer")

	f.signIn(t)
	require.Eventually(t, func() bool {
		return f.backend.RefreshCalls() >= 1
	}, 2*time.Second, 5*time.Millisecond, "timer starts once a session appears")
}

func TestNewManager_RequiredDependencies(t *testing.T) {
	store := session.NewStore()
	tokens := repofakes.NewFakeTokenRepo()

	_, err := refresh.NewManager(nil, store, tokens, "http://api")
	require.Error(t, err)
	_, err = refresh.NewManager(http.DefaultClient, nil, tokens, "http://api")
	require.Error(t, err)
	_, err = refresh.NewManager(http.DefaultClient, store, nil, "http://api")
	require.Error(t, err)
	_, err = refresh.NewManager(http.DefaultClient, store, tokens, "")
	require.Error(t, err)
}
