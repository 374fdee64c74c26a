package repofakes

import (
	"sync"

	"github.com/shopsphere/shopauth/tokenstore"
)

var _ tokenstore.Repo = (*FakeTokenRepo)(nil)

// FakeTokenRepo is an in-memory token repo for tests.
type FakeTokenRepo struct {
	lock  sync.RWMutex
	token string

	// Optional error injection
	LoadErr  error
	SaveErr  error
	ClearErr error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{}
}

func (r *FakeTokenRepo) Load() (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.LoadErr != nil {
		return "", r.LoadErr
	}
	return r.token, nil
}

func (r *FakeTokenRepo) Save(token string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.token = token
	return nil
}

func (r *FakeTokenRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.ClearErr != nil {
		return r.ClearErr
	}
	r.token = ""
	return nil
}
