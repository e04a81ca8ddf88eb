package relay

import (
	"log/slog"
	"time"
)

// Timeouts holds the four durations of spec.md §4.4, all configurable.
type Timeouts struct {
	// SocketWait bounds each receive call so the supervisor gets a chance
	// to run even when no datagram arrives.
	SocketWait time.Duration
	// Pairing bounds the age of a HALF_OPEN entry.
	Pairing time.Duration
	// ConnectionInactivity bounds the idle time of an ESTABLISHED entry.
	ConnectionInactivity time.Duration
	// NoConnections bounds how long the table may stay empty before the
	// daemon exits.
	NoConnections time.Duration
}

// Supervisor advances wall-clock state on every dispatcher wakeup: it reaps
// expired pairing/inactivity entries and tracks how long the table has been
// continuously empty, so the daemon can self-terminate (spec.md §4.4).
type Supervisor struct {
	table    *Table
	timeouts Timeouts
	logger   *slog.Logger

	// emptySince is the instant the current empty stretch is counted from:
	// the last tick at which the table held an entry (including a tick
	// whose own sweep emptied it), or the supervisor's creation time if no
	// tick has seen an entry. The no_connections clock runs from here.
	emptySince time.Time
}

// NewSupervisor creates a Supervisor over table. now is the process-start
// instant (or the instant the supervisor itself starts observing table).
func NewSupervisor(table *Table, timeouts Timeouts, now time.Time, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		table:      table,
		timeouts:   timeouts,
		logger:     logger.With(slog.String("component", "relay.supervisor")),
		emptySince: now,
	}
}

// Tick runs one supervisor pass at wall-clock instant now: it reaps expired
// HALF_OPEN and ESTABLISHED entries and updates the no_connections clock.
// It returns true once the table has been continuously empty for longer
// than timeouts.NoConnections, signaling the daemon should exit cleanly
// (spec.md §4.4, §8 scenario 6).
func (s *Supervisor) Tick(now time.Time) (shouldExit bool) {
	if s.table.Len() > 0 {
		// The table holds an entry as of now, so an empty stretch cannot
		// have started earlier than now.
		s.emptySince = now
	}

	if n := s.table.SweepPairingTimeouts(now, s.timeouts.Pairing); n > 0 {
		s.logger.Debug("reaped half-open entries past pairing timeout", slog.Int("count", n))
	}
	if n := s.table.SweepInactivity(now, s.timeouts.ConnectionInactivity); n > 0 {
		s.logger.Debug("reaped established entries past inactivity timeout", slog.Int("count", n))
	}

	if s.table.Len() > 0 {
		return false
	}

	return now.Sub(s.emptySince) > s.timeouts.NoConnections
}
