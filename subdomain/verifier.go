package subdomain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shopsphere/shopauth/session"
)

// State is the outcome of a subdomain access evaluation.
type State string

const (
	// StatePending means the startup auth check has not finished; no
	// decision has been made.
	StatePending State = "pending"
	// StateNoTenant means the visited host carries no tenant segment.
	StateNoTenant State = "no_tenant"
	// StateUnauthenticated means no session exists.
	StateUnauthenticated State = "unauthenticated"
	// StateLocalMismatch means the session's shop list does not contain the
	// visited tenant; rejected without a network call.
	StateLocalMismatch State = "local_mismatch"
	// StateDenied means the server-side verification failed.
	StateDenied State = "denied"
	// StateAuthorized means the server confirmed access.
	StateAuthorized State = "authorized"
)

// Decision is the result of verifying access to the visited tenant. Reason is
// a short human-readable denial message; ShopData is the server payload on
// success.
type Decision struct {
	State    State
	ShopName string
	ShopData json.RawMessage
	Reason   string
}

// Authorized reports whether the decision grants access.
func (d Decision) Authorized() bool {
	return d.State == StateAuthorized
}

// ShopChecker performs the authoritative per-tenant check. Implemented by
// shopapi.Client.
type ShopChecker interface {
	Shop(ctx context.Context, shopName string) (json.RawMessage, error)
}

// Verifier gates tenant dashboards behind a two-tier check: a cheap local
// membership filter against the cached session, then the server as ground
// truth for users who plausibly own the shop.
type Verifier struct {
	store      *session.Store
	shops      ShopChecker
	ready      <-chan struct{}
	apexDomain string
}

// NewVerifier creates a Verifier. ready is the bootstrap readiness channel;
// no decision is made before it closes.
func NewVerifier(store *session.Store, shops ShopChecker, ready <-chan struct{}, apexDomain string) (*Verifier, error) {
	if store == nil {
		return nil, fmt.Errorf("[NewVerifier] session store is required")
	}
	if shops == nil {
		return nil, fmt.Errorf("[NewVerifier] shop checker is required")
	}
	if ready == nil {
		return nil, fmt.Errorf("[NewVerifier] readiness channel is required")
	}
	return &Verifier{
		store:      store,
		shops:      shops,
		ready:      ready,
		apexDomain: apexDomain,
	}, nil
}

// Verify evaluates access for the visited host. If the startup auth check is
// still running, it waits for readiness; a cancelled context yields a Pending
// decision rather than a denial.
func (v *Verifier) Verify(ctx context.Context, host string) Decision {
	shopName, ok := FromHost(host, v.apexDomain)
	if !ok {
		return Decision{State: StateNoTenant}
	}

	select {
	case <-v.ready:
	case <-ctx.Done():
		return Decision{State: StatePending, ShopName: shopName, Reason: "authentication check in progress"}
	}

	sess, active := v.store.Current()
	if !active {
		return Decision{State: StateUnauthenticated, ShopName: shopName, Reason: "authentication required"}
	}

	if !sess.User.HasShop(shopName) {
		log.Debug().Str("shop", shopName).Msg("shop not in session, rejecting locally")
		return Decision{State: StateLocalMismatch, ShopName: shopName, Reason: "not a member of this shop"}
	}

	data, err := v.shops.Shop(ctx, shopName)
	if err != nil {
		log.Warn().Err(err).Str("shop", shopName).Msg("server-side shop verification failed")
		return Decision{State: StateDenied, ShopName: shopName, Reason: "verification failed"}
	}
	return Decision{State: StateAuthorized, ShopName: shopName, ShopData: data}
}
