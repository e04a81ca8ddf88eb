package relay

import (
	"net/netip"
	"time"
)

// MaxSecretLen is the maximum length, in bytes, of a session secret
// (wire format encodes the length in a single unsigned byte).
const MaxSecretLen = 255

// PeerAddress identifies a datagram's source by exact (IP, port) equality.
type PeerAddress = netip.AddrPort

// SessionSecret is the opaque byte string that joins two peers into a pair.
// Equality is plain byte-slice equality; callers that use a SessionSecret
// as a map key must first convert it with SessionSecret.Key.
type SessionSecret []byte

// Key returns a comparable representation of the secret suitable for use
// as a map key. SessionSecret itself (a []byte) is not comparable.
func (s SessionSecret) Key() string {
	return string(s)
}

// State is the lifecycle state of a PairingEntry.
type State uint8

const (
	// StateHalfOpen means exactly one peer has presented the secret.
	StateHalfOpen State = iota
	// StateEstablished means both peers have presented the secret.
	StateEstablished
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// PairingEntry is one session-secret-keyed pairing record (spec.md §3).
type PairingEntry struct {
	Secret string // SessionSecret.Key(), kept for diagnostics

	FirstPeer  PeerAddress
	SecondPeer PeerAddress // zero value (IsValid() == false) until ESTABLISHED

	CreatedAt      time.Time
	LastActivityAt time.Time

	State State
}

// HasSecondPeer reports whether SecondPeer has been set.
func (e *PairingEntry) HasSecondPeer() bool {
	return e.SecondPeer.IsValid()
}

// OtherPeer returns the peer address on the opposite side of src, and
// whether src is a recognized member of this entry.
func (e *PairingEntry) OtherPeer(src PeerAddress) (PeerAddress, bool) {
	switch {
	case src == e.FirstPeer:
		return e.SecondPeer, e.HasSecondPeer()
	case e.HasSecondPeer() && src == e.SecondPeer:
		return e.FirstPeer, true
	default:
		return PeerAddress{}, false
	}
}

// IsMember reports whether addr is one of this entry's known peers.
func (e *PairingEntry) IsMember(addr PeerAddress) bool {
	if addr == e.FirstPeer {
		return true
	}
	return e.HasSecondPeer() && addr == e.SecondPeer
}
