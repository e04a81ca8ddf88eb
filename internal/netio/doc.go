// Package netio provides the relay's single UDP socket abstraction.
//
// Linux-specific implementation uses golang.org/x/sys/unix to set
// SO_REUSEADDR, matching the listen-address reuse behavior production
// UDP relays need across restarts.
package netio
