//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/soraxas/goudprelay/internal/relay"
)

// ErrUnexpectedConnType indicates net.ListenConfig.ListenPacket returned an
// unexpected connection type instead of *net.UDPConn.
var ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

// ErrSocketClosed indicates an operation on an already-closed socket.
var ErrSocketClosed = errors.New("socket closed")

// Socket is the relay's single bidirectional UDP endpoint: every peer,
// paired or not, sends to and receives from this one socket (spec.md §5).
// It implements relay.Sender.
type Socket struct {
	conn *net.UDPConn

	mu     sync.Mutex
	closed bool
}

var _ relay.Sender = (*Socket)(nil)

// NewSocket binds a UDP socket at bindIP:port with SO_REUSEADDR set, so a
// restarted relay can rebind immediately without waiting out TIME_WAIT.
func NewSocket(bindIP string, port uint16) (*Socket, error) {
	addr, err := netip.ParseAddr(bindIP)
	if err != nil {
		return nil, fmt.Errorf("parse bind address %q: %w", bindIP, err)
	}
	laddr := netip.AddrPortFrom(addr, port)

	network := "udp4"
	if addr.Is6() && !addr.Is4In6() {
		network = "udp6"
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setReuseAddr(c)
		},
	}

	pc, err := lc.ListenPacket(context.Background(), network, laddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", laddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(
			fmt.Errorf("listen UDP %s: %w", laddr, ErrUnexpectedConnType),
			closeErr,
		)
	}

	return &Socket{conn: conn}, nil
}

// setReuseAddr sets SO_REUSEADDR on the listening socket's file descriptor.
func setReuseAddr(c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
	}
	return nil
}

// ReadFrom blocks for up to deadline, then reads one datagram into buf.
// A read that times out without any data returns (0, PeerAddress{}, an
// error satisfying net.Error.Timeout()) so the caller's supervisor loop
// still gets to run (spec.md §4.4, §4.5 "socket_wait").
func (s *Socket) ReadFrom(buf []byte, deadline time.Time) (int, relay.PeerAddress, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, relay.PeerAddress{}, fmt.Errorf("set read deadline: %w", err)
	}

	n, addrPort, err := s.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, relay.PeerAddress{}, err
	}

	src := netip.AddrPortFrom(addrPort.Addr().Unmap(), addrPort.Port())
	return n, src, nil
}

// SendTo implements relay.Sender: it writes payload to dst verbatim.
func (s *Socket) SendTo(payload []byte, dst relay.PeerAddress) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("send to %s: %w", dst, ErrSocketClosed)
	}
	s.mu.Unlock()

	if _, err := s.conn.WriteToUDPAddrPort(payload, dst); err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	return nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close socket: %w", err)
	}
	return nil
}

// LocalAddr returns the address and port the socket is bound to.
func (s *Socket) LocalAddr() relay.PeerAddress {
	udpAddr, ok := s.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return relay.PeerAddress{}
	}
	return udpAddr.AddrPort()
}
