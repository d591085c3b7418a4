package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/config"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [record]",
	Short: "Evaluate every move of a game",
	Long: `Report evaluates each position of a game, judges every move (best, good,
inaccuracy, mistake, blunder) and writes the result as YAML, JSON or Parquet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		game, err := loadGame(cmd, args)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		if format == "parquet" && out == "" {
			return fmt.Errorf("parquet output needs --out")
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()
		ev, closeEv, err := openEvaluator(ctx)
		if err != nil {
			return err
		}
		defer closeEv()

		rep, err := report.Generate(ctx, ev, game, cfg.ReportOptions(), func(done, total int) {
			log.Info().Int("done", done).Int("total", total).Msg("evaluating")
		})
		if err != nil {
			return err
		}
		for side, counts := range rep.Summary() {
			log.Info().Str("side", side).Interface("judgements", counts).Msg("summary")
		}

		if format == "parquet" {
			return report.WriteParquet(out, rep)
		}
		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		switch format {
		case "json":
			return report.WriteJSON(w, rep)
		case "yaml":
			return report.WriteYAML(w, rep)
		}
		return fmt.Errorf("unknown format %q", format)
	},
}

// openEvaluator starts the engine the report driver asks for.
func openEvaluator(ctx context.Context) (report.Evaluator, func(), error) {
	if cfg.Report.Driver == config.DriverSession {
		clientCfg, err := cfg.ClientConfig()
		if err != nil {
			return nil, nil, err
		}
		client, err := chessanalysis.Open(ctx, clientCfg, log)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}
	opts, err := cfg.UCIEngineOptions()
	if err != nil {
		return nil, nil, err
	}
	ev, err := report.NewUCIEvaluator(cfg.Stockfish.Path, opts, cfg.Stockfish.Args...)
	if err != nil {
		return nil, nil, err
	}
	return ev, func() { _ = ev.Close() }, nil
}

func init() {
	addGameFlags(reportCmd)
	reportCmd.Flags().Int("depth", 0, "search depth per position")
	reportCmd.Flags().Int("lines", 0, "principal variations per position")
	reportCmd.Flags().String("format", "yaml", "output format: yaml, json or parquet")
	reportCmd.Flags().String("out", "", "output file (default stdout)")
	rootCmd.AddCommand(reportCmd)
}
