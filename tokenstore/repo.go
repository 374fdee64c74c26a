package tokenstore

// Repo manages the durable copy of the access token. The client persists a
// single opaque token string keyed singularly; there is no multi-account
// support. Load returns "" with a nil error when no token is stored.
type Repo interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}
