// Package app wires the analysis client, report jobs and HTTP routes from a
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/api"
	"github.com/gmkornilov/chess-analysis-backend/internal/config"
	"github.com/gmkornilov/chess-analysis-backend/internal/jobs"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	Client *chessanalysis.Client
	Jobs   *jobs.Manager
	Router *gin.Engine

	cfg       *config.Configuration
	evaluator *report.UCIEvaluator
	cancel    context.CancelFunc
	log       zerolog.Logger
}

// Open starts the configured engine and builds the application around it.
func Open(ctx context.Context, cfg *config.Configuration, log zerolog.Logger) (*App, error) {
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, engine.Exec(clientCfg.EnginePath, log, clientCfg.EngineArgs...), log)
}

// New builds the application over an engine opener. With the "uci" report
// driver a second engine process is started for reports.
func New(ctx context.Context, cfg *config.Configuration, open engine.Opener, log zerolog.Logger) (*App, error) {
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	client := chessanalysis.New(open, clientCfg, log)
	if err := client.Initialize(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	a := &App{Client: client, cfg: cfg, log: log}
	var evaluator report.Evaluator = client
	if cfg.Report.Driver == config.DriverUCI {
		opts, err := cfg.UCIEngineOptions()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.evaluator, err = report.NewUCIEvaluator(cfg.Stockfish.Path, opts, cfg.Stockfish.Args...)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		evaluator = a.evaluator
	}

	jobsCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Jobs = jobs.NewManager(jobs.NewReportWorkerFactory(jobsCtx, evaluator, cfg.ReportOptions(), log))
	a.Router = api.NewRouter(api.NewAnalysisApi(client, log), api.NewReportApi(a.Jobs), log)
	return a, nil
}

// Serve answers HTTP requests on the configured address until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.cfg.Server.Addr(),
		Handler: a.Router,
	}
	errs := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close aborts running report jobs and stops the engines.
func (a *App) Close() error {
	a.cancel()
	var errs []error
	if a.evaluator != nil {
		errs = append(errs, a.evaluator.Close())
	}
	errs = append(errs, a.Client.Close())
	return errors.Join(errs...)
}
