package session

import (
	"golang.org/x/oauth2"

	autherrors "github.com/shopsphere/shopauth/internal/errors"
)

// TokenSource adapts the store to oauth2.TokenSource so oauth2-aware HTTP
// clients can ride on the live session. The returned source always reflects
// the store's current token, including tokens installed by a refresh.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: s}
}

type storeTokenSource struct {
	store *Store
}

var _ oauth2.TokenSource = storeTokenSource{}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	token := ts.store.Token()
	if token == "" {
		return nil, autherrors.ErrNoSession
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}, nil
}
