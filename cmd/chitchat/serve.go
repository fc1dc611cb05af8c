package main

import (
	"chitchat/cmd/internal/app"

	"github.com/spf13/cobra"
)

var serveEnvFiles []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chitchat server.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := app.LoadDotEnv(serveEnvFiles...); err != nil {
			return err
		}
		return app.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&serveEnvFiles, "env-file", []string{".env"}, "dotenv files to load (missing files are ignored)")
}
