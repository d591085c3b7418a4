package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/display"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [record]",
	Short: "Analyse one position with the engine",
	Long: `Analyze evaluates the position given with --fen, or the position at --ply of
a game record (the last one by default), and prints the engine's lines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := selectPosition(cmd, args)
		if err != nil {
			return err
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

		if live, _ := cmd.Flags().GetBool("live"); live {
			snapshots, unsubscribe := client.Subscribe()
			defer unsubscribe()
			go func() {
				for snap := range snapshots {
					if best, ok := snap.Best(); ok {
						fmt.Fprintf(cmd.ErrOrStderr(), "depth %d  %s  %s\n", best.Depth,
							display.Label(display.WhitePOV(best.Score, pos.WhiteToMove())), strings.Join(best.PV, " "))
					}
				}
			}()
		}

		res, err := client.Analyze(ctx, pos, chessanalysis.Options{})
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\nbest move %s (depth %d)\n", pos.FEN, res.BestMove, res.Depth)
		for _, l := range res.Lines {
			fmt.Fprintf(out, "%d. %-6s %s\n", l.Rank, display.Label(display.WhitePOV(l.Score, pos.WhiteToMove())), strings.Join(l.PV, " "))
		}
		return nil
	},
}

func selectPosition(cmd *cobra.Command, args []string) (positions.Position, error) {
	if fen, _ := cmd.Flags().GetString("fen"); fen != "" {
		return positions.Position{FEN: fen}, nil
	}
	game, err := loadGame(cmd, args)
	if err != nil {
		return positions.Position{}, err
	}
	ply, _ := cmd.Flags().GetInt("ply")
	return positions.At(game.Positions, ply)
}

func init() {
	addGameFlags(analyzeCmd)
	analyzeCmd.Flags().String("fen", "", "position to analyse")
	analyzeCmd.Flags().Int("ply", -1, "ply index of the record to analyse, -1 for the last")
	analyzeCmd.Flags().Int("depth", 0, "search depth")
	analyzeCmd.Flags().Int("lines", 0, "number of principal variations")
	analyzeCmd.Flags().Duration("timeout", 0, "analysis deadline")
	analyzeCmd.Flags().Bool("live", false, "print intermediate lines to stderr")
	analyzeCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
