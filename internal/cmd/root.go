package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:   "legion",
	Short: "Legion - browser chat relay for the Kimi agent runtime",
	Long: `Legion bridges a browser chat UI to the Kimi CLI agent runtime.

It keeps conversation metadata, maintains one live agent session per
conversation, and streams each turn's output over a WebSocket.

Run 'legion serve' to start the server.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetVersion returns the build version
func GetVersion() string {
	return Version
}
