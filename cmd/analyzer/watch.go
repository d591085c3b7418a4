package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/feed"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyse the positions of a live game feed",
	Long: `Watch follows a live game feed (lichess TV by default) and prints one JSON
evaluation per position. A new position cancels the analysis of the previous
one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		if url == "" {
			url = cfg.Feed.URL
		}
		clientCfg, err := cfg.ClientConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()
		client, err := chessanalysis.Open(ctx, clientCfg, log)
		if err != nil {
			return err
		}
		defer client.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		f := feed.NewFollower(url, client, chessanalysis.Options{}, func(ev feed.Evaluation) {
			if err := enc.Encode(ev); err != nil {
				log.Error().Err(err).Msg("writing evaluation")
			}
		}, log)
		if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("url", "", "feed URL (default: lichess TV)")
	watchCmd.Flags().Int("depth", 0, "search depth per position")
	watchCmd.Flags().Int("lines", 0, "number of principal variations")
	watchCmd.Flags().Duration("timeout", 0, "analysis deadline per position")
	rootCmd.AddCommand(watchCmd)
}
