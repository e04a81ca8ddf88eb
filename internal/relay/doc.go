// Package relay implements the core UDP rendezvous: packet classification,
// the pairing state machine keyed by session secret, the data-plane
// forwarder, and the timeout supervisor that bounds session and daemon
// lifetime.
package relay
