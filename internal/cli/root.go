// Package cli implements the vesper commands.
package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "vesper",
	Short: "Live voice companion with a persistent memory core",
	Long: "vesper is a hands-free voice client: microphone in, realtime speech " +
		"service over websocket, gapless effect-chain playback out, with " +
		"intent-classified archiving and retrieval against a memory backend.",
}
