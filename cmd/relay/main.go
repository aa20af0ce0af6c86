// main.go
// The relay binary. `serve` runs the WebSocket relay; `client` is a small
// terminal client for poking at a running relay by hand.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Real-time gesture event relay",
		Long: `relay accepts WebSocket connections and rebroadcasts every
gestureMessage event it receives to all other connected clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		clientCmd(),
		versionCmd(),
	)
	return rootCmd
}
