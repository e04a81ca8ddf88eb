// Package commands implements the relayctl cobra command tree.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// pingTimeout bounds how long ping waits for a pong reply.
	pingTimeout time.Duration
)

// rootCmd is the top-level cobra command for relayctl.
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Diagnostic CLI for the udprelay daemon",
	Long:  "relayctl exercises the udprelay wire protocol directly over UDP: it carries no control channel of its own to the daemon, only the datagrams any peer could send.",

	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
