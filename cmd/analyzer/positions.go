package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions [record]",
	Short: "List the positions of a game record",
	Long: `Positions replays a game record (SAN or coordinate moves, PGN decorations
allowed) and prints every position reached, ply 0 first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		game, err := loadGame(cmd, args)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(game.Positions)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, p := range game.Positions {
			san := p.SAN
			if san == "" {
				san = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", p.Ply, san, p.FEN)
		}
		return w.Flush()
	},
}

func init() {
	addGameFlags(positionsCmd)
	positionsCmd.Flags().Bool("json", false, "print positions as JSON")
	rootCmd.AddCommand(positionsCmd)
}
