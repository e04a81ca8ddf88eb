package relay

import (
	"log/slog"
	"time"
)

// Sender abstracts the single UDP socket the dispatcher forwards on. It
// decouples the relay package from the concrete transport (internal/netio),
// mirroring bfd.PacketSender in the teacher package.
type Sender interface {
	SendTo(payload []byte, dst PeerAddress) error
}

// Config holds the dispatcher's authentication parameters. The minimum
// session-secret length is configured on the Table (WithMinSecretLen).
type Config struct {
	// PSK is the configured pre-shared key (spec.md §6, default is a
	// fixed published string — callers are responsible for supplying it).
	PSK []byte
}

// Dispatcher implements the classify-and-route contract of spec.md §4.1: on
// every inbound datagram it decides whether the payload is data for an
// established pair, a pairing request, a liveness probe, or noise.
//
// Dispatcher owns no goroutines and holds no locks: it is driven entirely
// by Handle, called once per received datagram from the single receive
// loop (spec.md §5).
type Dispatcher struct {
	table  *Table
	cfg    Config
	sender Sender

	metrics Reporter
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher over table, authenticating pairing
// requests against cfg.PSK and forwarding established-pair traffic via
// sender.
func NewDispatcher(table *Table, cfg Config, sender Sender, metrics Reporter, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = noopReporter{}
	}
	return &Dispatcher{
		table:   table,
		cfg:     cfg,
		sender:  sender,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "relay.dispatcher")),
	}
}

// Handle classifies and routes one inbound datagram (spec.md §4.1). now is
// the wall-clock instant to use for any timestamp the packet causes to be
// written.
func (d *Dispatcher) Handle(src PeerAddress, payload []byte, now time.Time) {
	// Step 1: the ReverseIndex fast path runs before any parsing, so an
	// established peer's payload is never misread as a control message
	// even if it happens to start with the pairing command prefix
	// (spec.md §4.1, §9 "Classification precedence").
	if entry, ok := d.table.LookupByPeer(src); ok && entry.State == StateEstablished {
		d.forward(entry, src, payload, now)
		return
	}

	if IsLivenessProbe(payload) {
		d.handlePing(src)
		return
	}

	// Step 2: attempt to parse as a pairing request.
	req, err := ParsePairingRequest(payload)
	if err != nil {
		d.logger.Debug("dropping unparseable datagram",
			slog.String("src", src.String()),
			slog.String("error", err.Error()),
		)
		d.metrics.PacketDropped("unparseable")
		return
	}

	if !CheckPSK(req, d.cfg.PSK) {
		d.logger.Debug("dropping pairing request with bad PSK",
			slog.String("src", src.String()),
		)
		d.metrics.AuthFailure()
		d.metrics.PacketDropped("auth")
		return
	}

	switch result := d.table.Admit(req.Secret, src, now); result {
	case AdmitRejectedSecret:
		d.logger.Debug("dropping pairing request with secret below minimum length",
			slog.String("src", src.String()),
		)
		d.metrics.PacketDropped("secret_too_short")
	case AdmitIgnored:
		d.logger.Debug("ignoring pairing request for a full/foreign pair",
			slog.String("src", src.String()),
		)
		d.metrics.PacketDropped("third_peer")
	case AdmitCreated, AdmitRefreshed, AdmitEstablished:
		// Pairing requests are never forwarded (spec.md §4.2).
	}
}

// forward implements the data-plane (spec.md §4.3): the payload is relayed
// verbatim to the other member of entry, and LastActivityAt is refreshed.
func (d *Dispatcher) forward(entry *PairingEntry, src PeerAddress, payload []byte, now time.Time) {
	dst, ok := entry.OtherPeer(src)
	if !ok {
		// Unreachable by construction: src was just looked up as a member
		// of entry. Treated as a defensive no-op per spec.md §7.
		d.logger.Warn("forward: src not resolvable to a peer of its own entry",
			slog.String("src", src.String()),
		)
		return
	}

	d.table.Touch(src, now)

	if err := d.sender.SendTo(payload, dst); err != nil {
		// Send failures are logged but never tear down the pair: UDP
		// sends are best-effort, and a persistent failure resolves itself
		// via the inactivity timeout (spec.md §4.3, §7).
		d.logger.Warn("forward failed",
			slog.String("dst", dst.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	d.metrics.PacketForwarded(len(payload))
}

// handlePing answers a liveness probe with the fixed pong payload
// (spec.md §6). Failures to send are logged and otherwise ignored: the
// probe is best-effort diagnostics, not part of the pairing protocol.
func (d *Dispatcher) handlePing(src PeerAddress) {
	if err := d.sender.SendTo(PongPayload, src); err != nil {
		d.logger.Warn("pong send failed",
			slog.String("dst", src.String()),
			slog.String("error", err.Error()),
		)
	}
}
