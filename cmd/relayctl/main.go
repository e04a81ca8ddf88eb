// relayctl is a diagnostic CLI for probing a running udprelay daemon.
package main

import "github.com/soraxas/goudprelay/cmd/relayctl/commands"

func main() {
	commands.Execute()
}
