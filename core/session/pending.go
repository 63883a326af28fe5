package session

import (
	"context"
	"sync"
	"time"
)

type pendingEntry struct {
	ticket    PendingTicket
	expiresAt time.Time
}

// PendingStore tracks armed ticket requests. Claim is the single
// synchronization point between the push and poll delivery paths:
// both call it, and only the caller that receives ok=true may deliver.
type PendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]pendingEntry

	now func() time.Time
}

// NewPendingStore constructs a PendingStore with the given entry lifetime.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		ttl:     ttl,
		entries: make(map[string]pendingEntry),
		now:     time.Now,
	}
}

// Arm records a pending ticket request for a user, replacing any
// previous one so at most one request is ever armed per user.
func (p *PendingStore) Arm(user string, reg Registration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.entries[user] = pendingEntry{
		ticket:    PendingTicket{Registration: reg, SubmittedAt: now},
		expiresAt: now.Add(p.ttl),
	}
}

// Claim atomically removes and returns the pending request for a user.
// ok is false when no live request exists, meaning the other delivery
// path (or expiry) already resolved it and the caller must not deliver.
func (p *PendingStore) Claim(user string) (PendingTicket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[user]
	if !ok {
		return PendingTicket{}, false
	}
	delete(p.entries, user)
	if p.ttl != 0 && !p.now().Before(e.expiresAt) {
		return PendingTicket{}, false
	}
	return e.ticket, true
}

// Armed reports whether a live pending request exists for a user.
func (p *PendingStore) Armed(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[user]
	if !ok {
		return false
	}
	if p.ttl != 0 && !p.now().Before(e.expiresAt) {
		delete(p.entries, user)
		return false
	}
	return true
}

// Len reports the number of live pending requests.
func (p *PendingStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for user, e := range p.entries {
		if p.ttl == 0 || now.Before(e.expiresAt) {
			n++
		} else {
			delete(p.entries, user)
		}
	}
	return n
}

func (p *PendingStore) sweep() map[string]PendingTicket {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ttl == 0 {
		return nil
	}
	now := p.now()
	expired := make(map[string]PendingTicket)
	for user, e := range p.entries {
		if !now.Before(e.expiresAt) {
			expired[user] = e.ticket
			delete(p.entries, user)
		}
	}
	return expired
}

// RunJanitor sweeps expired pending requests at the given interval
// until ctx is done, invoking onExpire for each dropped entry. This is
// the bounded-cleanup safety net for requests that neither delivery
// path ever resolved.
func (p *PendingStore) RunJanitor(ctx context.Context, interval time.Duration, onExpire func(user string, ticket PendingTicket)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for user, ticket := range p.sweep() {
				if onExpire != nil {
					onExpire(user, ticket)
				}
			}
		}
	}
}
