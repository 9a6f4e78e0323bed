// Package cartsync implements the cart synchronization engine: it owns
// the in-memory cart for one device session, persists it to the
// device-local store on every mutation, mirrors it to the signed-in
// user's remote cart document on a debounced delay, and merges local
// and remote carts when the session's identity transitions into the
// authenticated state.
//
// The engine moves between three states: uninitialized, hydrated
// anonymous, and hydrated authenticated. Hydration happens once in New
// from the device-local snapshot; the merge runs only on a transition
// into authenticated (sign-in or account switch), never on sign-out.
package cartsync

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pastavicenzo/storefront/internal/domain/cart"
	"github.com/pastavicenzo/storefront/internal/identity"
)

// DefaultDebounce is the remote write coalescing delay. A burst of
// mutations within this window produces exactly one remote write that
// reflects the state after the last mutation.
const DefaultDebounce = 500 * time.Millisecond

// LocalStore is the device-local key-value store. The engine uses a
// single fixed key for the whole cart blob. A Read of an absent key
// returns (nil, nil).
type LocalStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// RemoteDocument is the per-user cart document held by the remote store.
type RemoteDocument struct {
	Lines     []cart.Line
	UpdatedAt time.Time
}

// RemoteStore is the hosted per-identity document store. Get returns
// (nil, nil) when no cart document exists for the user.
type RemoteStore interface {
	Get(ctx context.Context, userID string) (*RemoteDocument, error)
	Set(ctx context.Context, userID string, doc RemoteDocument) error
}

// Config wires an Engine's collaborators and policies.
type Config struct {
	// LocalKey is the fixed device-local store key for this session's blob.
	LocalKey string
	Local    LocalStore
	Remote   RemoteStore

	// Debounce is the remote write delay; DefaultDebounce when zero.
	Debounce time.Duration
	// ClearOnSignOut empties the cart when an authenticated user signs
	// out. Off by default: the cart is retained for guest-like
	// continuity, at the cost of exposing it to the next person on a
	// shared device.
	ClearOnSignOut bool

	Logger *zap.Logger
	Now    func() time.Time
}

// Engine owns the authoritative in-memory cart for one device session.
// Mutations are synchronous with respect to in-memory state; all
// persistence failures are logged and absorbed, so the engine degrades
// to local-only best-effort rather than surfacing sync errors.
type Engine struct {
	local    LocalStore
	localKey string
	remote   RemoteStore
	debounce time.Duration
	clearOut bool
	lg       *zap.Logger
	now      func() time.Time

	// ctx is the session lifecycle context used for detached persistence.
	ctx context.Context

	mu      sync.Mutex
	cart    cart.Cart
	ident   identity.Identity
	seq     uint64 // identity transition counter; stale merges compare against it
	timer   *time.Timer
	pending bool // a debounced remote write is scheduled
	closed  bool
	subs    map[int]func()
	nextSub int
}

// New creates an Engine and hydrates it from the device-local store.
// A missing or unreadable local snapshot yields an empty cart; local
// store failures are never fatal. ctx bounds all detached persistence
// for the lifetime of the session.
func New(ctx context.Context, cfg Config) *Engine {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		local:    cfg.Local,
		localKey: cfg.LocalKey,
		remote:   cfg.Remote,
		debounce: debounce,
		clearOut: cfg.ClearOnSignOut,
		lg:       lg,
		now:      now,
		ctx:      ctx,
		ident:    identity.Unknown,
		subs:     make(map[int]func()),
	}
	e.hydrate()
	return e
}

func (e *Engine) hydrate() {
	blob, err := e.local.Read(e.ctx, e.localKey)
	if err != nil {
		e.lg.Warn("local cart read failed, starting empty", zap.Error(err))
		return
	}
	if blob == nil {
		return
	}
	c, err := cart.DecodeSnapshot(blob)
	if err != nil {
		e.lg.Warn("local cart snapshot corrupt, starting empty", zap.Error(err))
		return
	}
	e.cart = c
}

// AddItem inserts one unit of the product (or product variant) into the
// cart, incrementing the quantity when the derived line already exists.
// The unit price is the caller's add-time snapshot; it is never
// re-fetched from the catalog later. Returns the derived line ID.
func (e *Engine) AddItem(productID, displayName string, unitPrice decimal.Decimal, imageRef, variantID string) string {
	id := cart.LineID(productID, variantID)
	e.mutate(func(c *cart.Cart) {
		c.Add(cart.Line{
			ID:          id,
			DisplayName: displayName,
			UnitPrice:   unitPrice,
			ImageRef:    imageRef,
		})
	})
	return id
}

// RemoveItem deletes the line; absent lines are a no-op.
func (e *Engine) RemoveItem(lineID string) {
	e.mutate(func(c *cart.Cart) { c.Remove(lineID) })
}

// SetQuantity replaces the line's quantity; below 1 removes the line.
func (e *Engine) SetQuantity(lineID string, quantity int) {
	e.mutate(func(c *cart.Cart) { c.SetQuantity(lineID, quantity) })
}

// Clear empties the cart.
func (e *Engine) Clear() {
	e.mutate(func(c *cart.Cart) { c.Clear() })
}

// Lines returns the current cart lines in display order.
func (e *Engine) Lines() []cart.Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Lines()
}

// TotalItems returns the sum of all line quantities.
func (e *Engine) TotalItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.TotalItems()
}

// TotalPrice returns the sum of quantity x unit price over all lines.
func (e *Engine) TotalPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.TotalPrice()
}

// Subscribe registers a change listener invoked after every committed
// cart change: mutations, merges, and checkout clears. The returned
// cancel func removes the listener.
func (e *Engine) Subscribe(fn func()) (cancel func()) {
	e.mu.Lock()
	key := e.nextSub
	e.nextSub++
	e.subs[key] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, key)
		e.mu.Unlock()
	}
}

// mutate applies fn to the in-memory cart, then runs the persistence
// pipeline exactly once: local write immediately, remote write on the
// debounced path. Subscribers are notified after the state is committed.
func (e *Engine) mutate(fn func(*cart.Cart)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fn(&e.cart)
	blob := cart.EncodeSnapshot(e.cart)
	e.scheduleRemoteLocked()
	subs := e.subsLocked()
	e.mu.Unlock()

	e.writeLocal(blob)
	notify(subs)
}

// OnIdentityChanged is the identity notifier callback; wire it to the
// session's identity hub once at startup. A transition into the
// authenticated state (from anonymous/unknown, or from another user)
// starts the merge; a transition out of it stops pending remote writes
// and never merges.
func (e *Engine) OnIdentityChanged(id identity.Identity) {
	e.mu.Lock()
	if e.closed || e.ident == id {
		e.mu.Unlock()
		return
	}
	prev := e.ident
	e.ident = id
	e.seq++
	seq := e.seq

	if id.IsAuthenticated() {
		// A pending write for the outgoing identity must not land on the
		// new user's document before the merge fetch completes.
		e.stopTimerLocked()
		e.mu.Unlock()
		e.lg.Debug("identity transition, starting cart merge",
			zap.String("user_id", id.UserID), zap.Uint64("seq", seq))
		go e.runMerge(seq, id.UserID)
		return
	}

	// Sign-out or unknown->anonymous resolution: cancel any scheduled
	// remote write for the outgoing user.
	e.stopTimerLocked()
	if !e.clearOut || !prev.IsAuthenticated() || e.cart.Empty() {
		e.mu.Unlock()
		return
	}
	e.cart.Clear()
	blob := cart.EncodeSnapshot(e.cart)
	subs := e.subsLocked()
	e.mu.Unlock()

	e.writeLocal(blob)
	notify(subs)
}

// runMerge fetches the user's remote cart document and folds it into the
// in-memory cart. The fetch runs detached; the commit is discarded when
// another identity transition happened in the meantime (seq mismatch),
// so an in-flight stale merge can never overwrite newer state.
func (e *Engine) runMerge(seq uint64, userID string) {
	doc, err := e.remote.Get(e.ctx, userID)
	if err != nil {
		// Sign-in must not block on a failed fetch: proceed as if the
		// remote cart were absent, keeping the local cart unmodified.
		e.lg.Warn("remote cart fetch failed, merging as empty",
			zap.String("user_id", userID), zap.Error(err))
		doc = nil
	}
	var remote cart.Cart
	if doc != nil {
		remote = cart.New(doc.Lines)
	}

	e.mu.Lock()
	if e.closed || e.seq != seq {
		e.mu.Unlock()
		e.lg.Debug("discarding stale merge result",
			zap.String("user_id", userID), zap.Uint64("seq", seq))
		return
	}
	e.cart = cart.Merge(e.cart, remote)
	blob := cart.EncodeSnapshot(e.cart)
	e.scheduleRemoteLocked()
	subs := e.subsLocked()
	e.mu.Unlock()

	e.writeLocal(blob)
	notify(subs)
}

// CompleteCheckout empties the cart after a successful order submission
// and clears both persisted copies: the device-local blob is deleted and,
// when authenticated, an empty remote document is written immediately,
// bypassing the debounce. Both writes are best-effort.
func (e *Engine) CompleteCheckout(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.cart.Clear()
	e.stopTimerLocked()
	ident := e.ident
	subs := e.subsLocked()
	e.mu.Unlock()

	if err := e.local.Delete(ctx, e.localKey); err != nil {
		e.lg.Warn("local cart delete failed", zap.Error(err))
	}
	if ident.IsAuthenticated() {
		doc := RemoteDocument{UpdatedAt: e.now().UTC()}
		if err := e.remote.Set(ctx, ident.UserID, doc); err != nil {
			e.lg.Warn("remote cart clear failed",
				zap.String("user_id", ident.UserID), zap.Error(err))
		}
	}
	notify(subs)
}

// Close stops the engine. A still-pending debounced remote write is
// flushed synchronously so an evicted session does not lose its last
// mutations. The engine ignores all calls after Close.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	flush := e.pending && e.ident.IsAuthenticated()
	e.stopTimerLocked()
	userID := e.ident.UserID
	var doc RemoteDocument
	if flush {
		doc = RemoteDocument{Lines: e.cart.Lines(), UpdatedAt: e.now().UTC()}
	}
	e.mu.Unlock()

	if flush {
		// Close usually runs after the session context is cancelled, so
		// the flush gets its own deadline instead.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), 5*time.Second)
		defer cancel()
		if err := e.remote.Set(ctx, userID, doc); err != nil {
			e.lg.Warn("remote cart flush on close failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// scheduleRemoteLocked (re)arms the single pending debounce timer.
// Remote writes are scheduled only while authenticated; each call
// replaces any still-pending write so a burst of mutations collapses
// into one write of the final state.
func (e *Engine) scheduleRemoteLocked() {
	if !e.ident.IsAuthenticated() {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.pending = true
	e.timer = time.AfterFunc(e.debounce, e.flushRemote)
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.pending = false
}

// flushRemote writes the current state to the user's remote document.
// It re-reads state under the lock at fire time, so it always writes
// the latest committed cart for the current user, never an intermediate
// or out-of-order snapshot.
func (e *Engine) flushRemote() {
	e.mu.Lock()
	e.pending = false
	if e.closed || !e.ident.IsAuthenticated() {
		e.mu.Unlock()
		return
	}
	userID := e.ident.UserID
	doc := RemoteDocument{Lines: e.cart.Lines(), UpdatedAt: e.now().UTC()}
	e.mu.Unlock()

	if err := e.remote.Set(e.ctx, userID, doc); err != nil {
		// Abandoned: the next mutation naturally reschedules a write.
		e.lg.Warn("remote cart write failed",
			zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) writeLocal(blob []byte) {
	if err := e.local.Write(e.ctx, e.localKey, blob); err != nil {
		// Non-fatal: memory stays authoritative for the session.
		e.lg.Warn("local cart write failed", zap.Error(err))
	}
}

func (e *Engine) subsLocked() []func() {
	subs := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}
