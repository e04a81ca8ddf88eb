package relay

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// Wire protocol constants (spec.md §6).
const (
	// pairingHeaderLen is the fixed portion of a pairing request: two
	// command bytes, one PSK-length byte, one secret-length byte.
	pairingHeaderLen = 4

	cmdPairingByte0 = 0xFF
	cmdPairingByte1 = 0x05

	cmdPingByte0 = 0xFF
	cmdPingByte1 = 0x15

	cmdPongByte0 = 0xFF
	cmdPongByte1 = 0x16
)

// PongPayload is the fixed liveness-probe reply (spec.md §6): "FF 16".
var PongPayload = []byte{cmdPongByte0, cmdPongByte1}

// Sentinel errors for pairing-request parsing. None of these are ever
// surfaced to the sender (spec.md §4.2, §7): the dispatcher discards the
// datagram and moves on.
var (
	ErrShortPacket  = errors.New("packet shorter than pairing header")
	ErrWrongCommand = errors.New("command prefix is not a pairing request")
	ErrShortPayload = errors.New("payload shorter than declared PSK+secret length")
	ErrEmptySecret  = errors.New("session secret must be at least 1 byte")
)

// PairingRequest is a parsed, not-yet-authenticated pairing request
// (spec.md §4.2 wire layout).
type PairingRequest struct {
	PSK    []byte
	Secret SessionSecret
}

// ParsePairingRequest decodes buf as a pairing request (spec.md §4.2):
//
//	offset 0: 0xFF 0x05       command
//	offset 2: P               PSK length
//	offset 3: S               session secret length
//	offset 4: PSK[P]
//	offset 4+P: SessionSecret[S]
//
// Trailing bytes beyond 4+P+S are ignored. A payload shorter than the
// pairing header, a non-matching command, a truncated PSK/secret, or a
// zero-length secret (spec.md §6: "a zero-length session secret is
// rejected because it cannot uniquely identify a pair") all return an
// error: the caller must discard the datagram without any reply.
func ParsePairingRequest(buf []byte) (PairingRequest, error) {
	if len(buf) < pairingHeaderLen {
		return PairingRequest{}, fmt.Errorf("parse pairing request: %w", ErrShortPacket)
	}
	if buf[0] != cmdPairingByte0 || buf[1] != cmdPairingByte1 {
		return PairingRequest{}, fmt.Errorf("parse pairing request: %w", ErrWrongCommand)
	}

	pskLen := int(buf[2])
	secretLen := int(buf[3])

	if len(buf) < pairingHeaderLen+pskLen+secretLen {
		return PairingRequest{}, fmt.Errorf("parse pairing request: %w", ErrShortPayload)
	}
	if secretLen == 0 {
		return PairingRequest{}, fmt.Errorf("parse pairing request: %w", ErrEmptySecret)
	}

	pskStart := pairingHeaderLen
	secretStart := pskStart + pskLen

	req := PairingRequest{
		PSK:    buf[pskStart:secretStart],
		Secret: buf[secretStart : secretStart+secretLen],
	}
	return req, nil
}

// CheckPSK reports whether req's PSK matches the configured pre-shared key,
// using a constant-time comparison so a timing side channel cannot be used
// to brute-force the PSK byte by byte (spec.md §7: "silently discarded ...
// this avoids leaking PSK-validation oracles").
func CheckPSK(req PairingRequest, configured []byte) bool {
	if len(req.PSK) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare(req.PSK, configured) == 1
}

// IsLivenessProbe reports whether buf is a liveness probe (spec.md §6:
// "FF 15"). The probe carries no further payload; any trailing bytes are
// ignored, matching the tolerance ParsePairingRequest shows for its own
// trailing bytes.
func IsLivenessProbe(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == cmdPingByte0 && buf[1] == cmdPingByte1
}
