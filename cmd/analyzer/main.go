// Package main is the chess-analysis command line: it derives positions,
// analyses them with a UCI engine, writes game reports, follows a live
// feed and serves the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gmkornilov/chess-analysis-backend/internal/config"
	"github.com/gmkornilov/chess-analysis-backend/internal/logging"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg *config.Configuration
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chess-analysis",
	Short: "Analyse chess games with a UCI engine",
	Long: `chess-analysis turns game records into positions and evaluates them with an
external UCI engine such as Stockfish. Settings come from chess-analysis.yaml,
.env and the environment; flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./chess-analysis.yaml or ~/.config/chess-analysis/chess-analysis.yaml)")
	rootCmd.PersistentFlags().String("engine", "", "path of the UCI engine executable")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable logs")
}

func loadConfig(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	c, err := config.InitConfig(file)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("engine") {
		c.Stockfish.Path, _ = flags.GetString("engine")
	}
	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("pretty") {
		c.Log.Pretty, _ = flags.GetBool("pretty")
	}
	if f := flags.Lookup("depth"); f != nil && f.Changed {
		d, _ := flags.GetInt("depth")
		c.Analysis.Depth, c.Report.Depth = d, d
	}
	if f := flags.Lookup("lines"); f != nil && f.Changed {
		l, _ := flags.GetInt("lines")
		c.Analysis.Lines, c.Report.Lines = l, l
	}
	if f := flags.Lookup("timeout"); f != nil && f.Changed {
		c.Analysis.Timeout, _ = flags.GetDuration("timeout")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.Log, os.Stderr)
	if err != nil {
		return err
	}
	cfg, log = c, l
	return nil
}

// addGameFlags registers the flags loadGame reads.
func addGameFlags(cmd *cobra.Command) {
	cmd.Flags().String("pgn", "", "PGN file to read instead of the record argument (.bz2 allowed)")
	cmd.Flags().Int("game", 0, "index of the game in the PGN file")
}

// loadGame reads a game from --pgn, the record arguments or stdin.
func loadGame(cmd *cobra.Command, args []string) (positions.Game, error) {
	if path, _ := cmd.Flags().GetString("pgn"); path != "" {
		games, err := positions.ReadFile(path)
		if err != nil {
			return positions.Game{}, err
		}
		i, _ := cmd.Flags().GetInt("game")
		if i < 0 || i >= len(games) {
			return positions.Game{}, fmt.Errorf("%s holds %d games, no game %d", path, len(games), i)
		}
		return games[i], nil
	}

	var record string
	if len(args) > 0 {
		record = strings.Join(args, " ")
	} else {
		data, err := positions.Decode(cmd.InOrStdin())
		if err != nil {
			return positions.Game{}, err
		}
		record = string(data)
	}
	all, err := positions.Derive(record)
	if err != nil {
		return positions.Game{}, err
	}
	return positions.Game{Positions: all}, nil
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
