package main

import (
	"github.com/spf13/cobra"

	"github.com/gmkornilov/chess-analysis-backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("port"); addr != "" {
			cfg.Server.Port = addr
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()
		a, err := app.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port to listen on")
	rootCmd.AddCommand(serveCmd)
}
