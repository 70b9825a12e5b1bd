package services

import (
	"context"
	"strings"
	"sync"
)

// DefaultCartSession is used when a caller does not name its POS session.
const DefaultCartSession = "counter"

// CartSessions hands out one isolated cart per POS session. Carts are created on first use
// and restored from the state store when one is configured.
type CartSessions struct {
	mu    sync.Mutex
	carts map[string]*CartStore
	deps  CartStoreDeps
}

// NewCartSessions constructs a registry whose carts share deps, except for the session name.
func NewCartSessions(deps CartStoreDeps) *CartSessions {
	return &CartSessions{carts: make(map[string]*CartStore), deps: deps}
}

// Cart returns the cart for session, creating and loading it if needed. A load failure is
// kept on the cart (see CartStore.Err) and the cart starts empty.
func (s *CartSessions) Cart(ctx context.Context, session string) *CartStore {
	session = strings.TrimSpace(session)
	if session == "" {
		session = DefaultCartSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cart, ok := s.carts[session]; ok {
		return cart
	}
	deps := s.deps
	deps.Session = session
	cart := NewCartStore(deps)
	if err := cart.Load(ctx); err != nil {
		cart.logger(ctx, "cart.load_failed", map[string]any{"session": session, "error": err.Error()})
	}
	s.carts[session] = cart
	return cart
}

// Drop forgets the cart for session after its queued writes land, so a later Cart call
// restores the latest snapshot. The persisted snapshot itself is kept.
func (s *CartSessions) Drop(ctx context.Context, session string) error {
	session = strings.TrimSpace(session)
	s.mu.Lock()
	cart, ok := s.carts[session]
	delete(s.carts, session)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return cart.Flush(ctx)
}

// Flush waits for the queued writes of every live cart and returns the first failure.
func (s *CartSessions) Flush(ctx context.Context) error {
	s.mu.Lock()
	carts := make([]*CartStore, 0, len(s.carts))
	for _, cart := range s.carts {
		carts = append(carts, cart)
	}
	s.mu.Unlock()

	var first error
	for _, cart := range carts {
		if err := cart.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Sessions returns the number of live carts.
func (s *CartSessions) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}
