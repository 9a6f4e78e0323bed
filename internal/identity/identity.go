// Package identity models the signed-in state of a device session and
// fans out identity-change events to subscribers such as the cart
// synchronization engine.
package identity

import (
	"context"
	"sync"
)

// State is the tri-state resolution of the current user.
type State uint8

const (
	// StateUnknown means the identity has not been resolved yet.
	StateUnknown State = iota
	// StateAnonymous means no user is signed in.
	StateAnonymous
	// StateAuthenticated means a user is signed in.
	StateAuthenticated
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the current user of a device session. UserID is set only
// when State is StateAuthenticated.
type Identity struct {
	State  State
	UserID string
}

// Unknown is the unresolved identity every session starts with.
var Unknown = Identity{State: StateUnknown}

// Anonymous is the resolved signed-out identity.
var Anonymous = Identity{State: StateAnonymous}

// Authenticated builds the identity for a signed-in user.
func Authenticated(userID string) Identity {
	return Identity{State: StateAuthenticated, UserID: userID}
}

// IsAuthenticated reports whether a user is signed in.
func (i Identity) IsAuthenticated() bool {
	return i.State == StateAuthenticated
}

// TokenInfo is the verified principal extracted from an ID token.
type TokenInfo struct {
	UserID string
	Email  string
	Name   string
	Admin  bool
}

// Verifier validates an ID token issued by the authentication provider.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*TokenInfo, error)
}

// Hub is the identity-change notifier for one device session. The
// sign-in and sign-out handlers push states into it; subscribers (the
// cart engine) receive every change plus an immediate replay of the
// current state on subscription, mirroring how auth providers deliver
// their initial auth-state callback.
type Hub struct {
	mu      sync.Mutex
	current Identity
	subs    map[int]func(Identity)
	nextSub int
}

// NewHub creates a Hub starting in the unknown state.
func NewHub() *Hub {
	return &Hub{current: Unknown, subs: make(map[int]func(Identity))}
}

// Current returns the last published identity.
func (h *Hub) Current() Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Set publishes a new identity. Publishing the identical identity again
// is a no-op, so a repeated sign-in with the same user does not re-run
// subscriber transitions.
func (h *Hub) Set(id Identity) {
	h.mu.Lock()
	if h.current == id {
		h.mu.Unlock()
		return
	}
	h.current = id
	subs := make([]func(Identity), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
}

// Subscribe registers fn for identity changes and invokes it once with
// the current state. The returned cancel func removes the subscription.
func (h *Hub) Subscribe(fn func(Identity)) (cancel func()) {
	h.mu.Lock()
	key := h.nextSub
	h.nextSub++
	h.subs[key] = fn
	current := h.current
	h.mu.Unlock()

	fn(current)

	return func() {
		h.mu.Lock()
		delete(h.subs, key)
		h.mu.Unlock()
	}
}
