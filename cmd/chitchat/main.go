// Command chitchat runs the chitchat server and its end-to-end smoke check.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chitchat",
	Short: "Two-party chat presence and fanout service.",
	Long: `chitchat serves the realtime gateway (/ws) and the message API (/api/v1/message).

  chitchat serve            run the server (reads CHITCHAT_* env and .env)
  chitchat smoke            connect two users to a running server and check presence + fanout`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, smokeCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
