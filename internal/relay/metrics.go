package relay

// Reporter receives counters from the pairing table and forwarder. It
// decouples the relay package from any concrete metrics backend, mirroring
// the MetricsReporter pattern used throughout the teacher's bfd package
// (bfd.Manager's WithManagerMetrics / bfd.Session's WithMetrics).
type Reporter interface {
	// PairingCreated is called when a new HALF_OPEN entry is admitted.
	PairingCreated()
	// PairingEstablished is called on the HALF_OPEN -> ESTABLISHED transition.
	PairingEstablished()
	// PairingEvicted is called whenever an entry is removed, labeled by reason.
	PairingEvicted(reason string)
	// PacketForwarded is called once per successfully forwarded payload.
	PacketForwarded(bytes int)
	// PacketDropped is called once per datagram the dispatcher discards,
	// labeled by the reason for the drop.
	PacketDropped(reason string)
	// AuthFailure is called when a pairing request fails PSK validation.
	AuthFailure()
}

// noopReporter discards everything. Used when no Reporter is configured.
type noopReporter struct{}

func (noopReporter) PairingCreated()       {}
func (noopReporter) PairingEstablished()   {}
func (noopReporter) PairingEvicted(string) {}
func (noopReporter) PacketForwarded(int)   {}
func (noopReporter) PacketDropped(string)  {}
func (noopReporter) AuthFailure()          {}

var _ Reporter = noopReporter{}
