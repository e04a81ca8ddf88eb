package commands

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
)

// pingRequest and pongReply are the liveness-probe wire bytes (spec.md §6).
var (
	pingRequest = []byte{0xFF, 0x15}
	pongReply   = []byte{0xFF, 0x16}
)

// ErrUnexpectedReply indicates a response arrived but was not the expected
// pong payload.
var ErrUnexpectedReply = errors.New("unexpected reply payload")

func pingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "Send a liveness probe to a relay and wait for its pong",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runPing(args[0], pingTimeout)
		},
	}

	cmd.Flags().DurationVar(&pingTimeout, "timeout", 2*time.Second, "how long to wait for a pong reply")

	return cmd
}

func runPing(addr string, timeout time.Duration) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	start := time.Now()

	if err := conn.SetDeadline(start.Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.Write(pingRequest); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("read reply from %s: %w", addr, err)
	}
	elapsed := time.Since(start)

	if n != len(pongReply) || buf[0] != pongReply[0] || buf[1] != pongReply[1] {
		return fmt.Errorf("ping %s: %w", addr, ErrUnexpectedReply)
	}

	fmt.Printf("pong from %s in %s\n", addr, elapsed.Round(time.Microsecond))
	return nil
}
