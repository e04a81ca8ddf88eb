package relay

import (
	"log/slog"
	"time"
)

// Table owns the PairingTable and its ReverseIndex (spec.md §3). It is not
// safe for concurrent use: the dispatcher is the sole owner, called from a
// single goroutine, exactly as spec.md §5 requires.
type Table struct {
	bySecret map[string]*PairingEntry
	byPeer   map[PeerAddress]*PairingEntry

	minSecretLen int

	metrics Reporter
	logger  *slog.Logger
}

// Option configures a Table at construction time.
type Option func(*Table)

// WithMetrics attaches a Reporter. A nil reporter is ignored.
func WithMetrics(r Reporter) Option {
	return func(t *Table) {
		if r != nil {
			t.metrics = r
		}
	}
}

// WithMinSecretLen rejects pairing requests whose secret is shorter than n.
// spec.md §9 recommends n >= 8 as a hardening measure; n <= 0 disables the
// check (only the wire-format minimum of 1 byte then applies).
func WithMinSecretLen(n int) Option {
	return func(t *Table) {
		t.minSecretLen = n
	}
}

// NewTable creates an empty Table.
func NewTable(logger *slog.Logger, opts ...Option) *Table {
	t := &Table{
		bySecret: make(map[string]*PairingEntry),
		byPeer:   make(map[PeerAddress]*PairingEntry),
		metrics:  noopReporter{},
		logger:   logger.With(slog.String("component", "relay.table")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of entries currently in the table.
func (t *Table) Len() int {
	return len(t.bySecret)
}

// LookupByPeer returns the entry a peer address currently belongs to, per
// the ReverseIndex (spec.md §3). This is the fast path the dispatcher
// consults before attempting to parse a pairing request (spec.md §4.1 step 1).
func (t *Table) LookupByPeer(addr PeerAddress) (*PairingEntry, bool) {
	e, ok := t.byPeer[addr]
	return e, ok
}

// AdmitResult describes the outcome of Admit, for logging/metrics callers.
type AdmitResult uint8

const (
	// AdmitCreated indicates a brand new HALF_OPEN entry was inserted.
	AdmitCreated AdmitResult = iota
	// AdmitRefreshed indicates a known peer's existing entry had its
	// timestamp refreshed without changing shape.
	AdmitRefreshed
	// AdmitEstablished indicates the HALF_OPEN -> ESTABLISHED transition.
	AdmitEstablished
	// AdmitIgnored indicates a third-peer (or otherwise non-conforming)
	// pairing request that must not alter the table (spec.md §4.2 step 4).
	AdmitIgnored
	// AdmitRejectedSecret indicates the secret failed the minimum-length
	// hardening check (spec.md §9) and was never looked up in the table.
	AdmitRejectedSecret
)

// Admit processes one validated pairing request (PSK already checked) from
// source src carrying secret, per spec.md §4.2 steps 1-4. now is the
// wall-clock instant to stamp on the entry.
func (t *Table) Admit(secret SessionSecret, src PeerAddress, now time.Time) AdmitResult {
	if t.minSecretLen > 0 && len(secret) < t.minSecretLen {
		return AdmitRejectedSecret
	}

	key := secret.Key()
	entry, exists := t.bySecret[key]

	if !exists {
		// Step 1: new secret. Evict any stale entry this address was
		// already a member of before reusing the address.
		t.evictPeer(src, "reverse_index_conflict")

		entry = &PairingEntry{
			Secret:         key,
			FirstPeer:      src,
			CreatedAt:      now,
			LastActivityAt: now,
			State:          StateHalfOpen,
		}
		t.bySecret[key] = entry
		t.byPeer[src] = entry
		t.metrics.PairingCreated()
		return AdmitCreated
	}

	switch entry.State {
	case StateHalfOpen:
		if src == entry.FirstPeer {
			// Step 2: idempotent refresh from the same first peer.
			entry.CreatedAt = now
			return AdmitRefreshed
		}

		// Step 3: second distinct peer establishes the pair. Evict any
		// stale entry this address belonged to first.
		t.evictPeer(src, "reverse_index_conflict")
		entry.SecondPeer = src
		entry.State = StateEstablished
		entry.LastActivityAt = now
		t.byPeer[src] = entry
		t.metrics.PairingEstablished()
		return AdmitEstablished

	case StateEstablished:
		if entry.IsMember(src) {
			// Step 4: benign duplicate from a known peer.
			entry.LastActivityAt = now
			return AdmitRefreshed
		}
		// Step 4: a third peer presenting the secret does not replace
		// either endpoint. The table is left unchanged.
		return AdmitIgnored
	}

	return AdmitIgnored
}

// Touch refreshes LastActivityAt on the entry owning addr, if any. Used by
// the data-plane forwarder on every payload it relays (spec.md §4.3).
func (t *Table) Touch(addr PeerAddress, now time.Time) {
	if e, ok := t.byPeer[addr]; ok {
		e.LastActivityAt = now
	}
}

// evictPeer removes the entry addr currently belongs to, if any, deleting
// both its ReverseIndex entries and its PairingTable entry (spec.md §3,
// §4.2: "Conflicts are resolved by evicting the older entry"). No-op if
// addr is not currently a member of any entry.
func (t *Table) evictPeer(addr PeerAddress, reason string) {
	e, ok := t.byPeer[addr]
	if !ok {
		return
	}
	t.remove(e, reason)
}

// remove deletes an entry and both of its ReverseIndex mappings.
func (t *Table) remove(e *PairingEntry, reason string) {
	delete(t.bySecret, e.Secret)
	delete(t.byPeer, e.FirstPeer)
	if e.HasSecondPeer() {
		delete(t.byPeer, e.SecondPeer)
	}
	t.metrics.PairingEvicted(reason)
	t.logger.Debug("pairing entry evicted",
		slog.String("reason", reason),
		slog.String("state", e.State.String()),
	)
}

// SweepPairingTimeouts reaps every HALF_OPEN entry whose age exceeds
// pairingTimeout (spec.md §4.4). Returns the number of entries removed.
func (t *Table) SweepPairingTimeouts(now time.Time, pairingTimeout time.Duration) int {
	return t.sweep(func(e *PairingEntry) bool {
		return e.State == StateHalfOpen && now.Sub(e.CreatedAt) > pairingTimeout
	}, "pairing_timeout")
}

// SweepInactivity reaps every ESTABLISHED entry that has been idle for
// longer than inactivityTimeout (spec.md §4.4). Returns the number removed.
func (t *Table) SweepInactivity(now time.Time, inactivityTimeout time.Duration) int {
	return t.sweep(func(e *PairingEntry) bool {
		return e.State == StateEstablished && now.Sub(e.LastActivityAt) > inactivityTimeout
	}, "inactivity_timeout")
}

// sweep removes every entry for which shouldEvict returns true. Entries are
// visited in arbitrary map order, matching spec.md §4.4 ("sweeps entries in
// any order; all entries whose deadline has passed at a given tick are
// reaped in that tick").
func (t *Table) sweep(shouldEvict func(*PairingEntry) bool, reason string) int {
	var victims []*PairingEntry
	for _, e := range t.bySecret {
		if shouldEvict(e) {
			victims = append(victims, e)
		}
	}
	for _, e := range victims {
		t.remove(e, reason)
	}
	return len(victims)
}

// Snapshot returns a defensive copy of every entry, for diagnostics and
// tests. The returned entries share no memory with the table's internals.
func (t *Table) Snapshot() []PairingEntry {
	out := make([]PairingEntry, 0, len(t.bySecret))
	for _, e := range t.bySecret {
		out = append(out, *e)
	}
	return out
}
