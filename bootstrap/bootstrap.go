// Package bootstrap restores a session from the persisted token at process
// start and exposes a readiness signal consumers wait on before making
// authorization decisions.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	autherrors "github.com/shopsphere/shopauth/internal/errors"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/tokenstore"
)

// ProfileService fetches the authenticated user's profile. Implemented by
// shopapi.Client; the profile call rides the gateway, so an expired token
// gets its one refresh-and-retry before the result lands here.
type ProfileService interface {
	Profile(ctx context.Context) (session.User, error)
}

// Bootstrapper runs the one-time startup auth check.
type Bootstrapper struct {
	store   *session.Store
	tokens  tokenstore.Repo
	profile ProfileService

	once    sync.Once
	loading atomic.Bool
	ready   chan struct{}
}

// New creates a Bootstrapper. All dependencies are required.
func New(store *session.Store, tokens tokenstore.Repo, profile ProfileService) (*Bootstrapper, error) {
	if store == nil {
		return nil, fmt.Errorf("[bootstrap.New] session store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[bootstrap.New] token repo is required")
	}
	if profile == nil {
		return nil, fmt.Errorf("[bootstrap.New] profile service is required")
	}

	b := &Bootstrapper{
		store:   store,
		tokens:  tokens,
		profile: profile,
		ready:   make(chan struct{}),
	}
	b.loading.Store(true)
	return b, nil
}

// Ready returns a channel closed once the startup auth check has finished,
// whatever the outcome. Authorization decisions must wait on this to avoid
// judging a visitor unauthenticated mid-bootstrap.
func (b *Bootstrapper) Ready() <-chan struct{} {
	return b.ready
}

// Loading reports whether the auth check is still in progress.
func (b *Bootstrapper) Loading() bool {
	return b.loading.Load()
}

// Run performs the startup auth check. Only the first call does work;
// subsequent calls return immediately.
//
// Policy: no persisted token means no session and no network call. A token
// whose profile fetch returns a definitive 401 is cleared. Any other failure
// (network, server error) leaves the token intact and the session absent —
// the user is not logged out for reasons unrelated to credential validity.
func (b *Bootstrapper) Run(ctx context.Context) error {
	var runErr error
	b.once.Do(func() {
		defer func() {
			b.loading.Store(false)
			close(b.ready)
		}()
		runErr = b.restore(ctx)
	})
	return runErr
}

func (b *Bootstrapper) restore(ctx context.Context) error {
	token, err := b.tokens.Load()
	if err != nil {
		return autherrors.Wrapf(err, "[Bootstrapper.Run] loading persisted token")
	}
	if token == "" {
		log.Debug().Msg("no persisted token, starting unauthenticated")
		return nil
	}

	user, err := b.profile.Profile(ctx)
	if err != nil {
		if autherrors.Is(err, autherrors.ErrAuthExpired) || autherrors.Is(err, autherrors.ErrAuthInvalid) {
			log.Info().Msg("persisted token rejected, clearing it")
			if clearErr := b.tokens.Clear(); clearErr != nil {
				return autherrors.Wrapf(clearErr, "[Bootstrapper.Run] clearing rejected token")
			}
			return nil
		}
		log.Warn().Err(err).Msg("auth check failed transiently, keeping persisted token")
		return nil
	}

	// The gateway may have refreshed the token during the profile fetch;
	// re-read so the session carries the freshest credential.
	current, err := b.tokens.Load()
	if err != nil || current == "" {
		current = token
	}
	b.store.Set(user, current)
	log.Info().Str("username", user.Username).Msg("session restored")
	return nil
}
