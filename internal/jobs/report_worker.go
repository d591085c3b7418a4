package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
	"github.com/rs/zerolog"
)

type ReportWorkerFactory struct {
	Evaluator report.Evaluator
	Options   report.Options

	ctx  context.Context
	slot chan struct{}
	log  zerolog.Logger
}

// NewReportWorkerFactory creates workers that share evaluator. Workers run
// one at a time; the rest wait for their turn. Cancelling ctx aborts them.
func NewReportWorkerFactory(ctx context.Context, evaluator report.Evaluator, opts report.Options, log zerolog.Logger) *ReportWorkerFactory {
	return &ReportWorkerFactory{
		Evaluator: evaluator,
		Options:   opts,
		ctx:       ctx,
		slot:      make(chan struct{}, 1),
		log:       log.With().Str("component", "jobs").Logger(),
	}
}

func (f *ReportWorkerFactory) CreateReportWorker(id string, game positions.Game, opts report.Options) *ReportWorker {
	if opts.Depth <= 0 {
		opts.Depth = f.Options.Depth
	}
	if opts.Lines <= 0 {
		opts.Lines = f.Options.Lines
	}
	return &ReportWorker{
		id:        id,
		game:      game,
		opts:      opts,
		evaluator: f.Evaluator,
		ctx:       f.ctx,
		slot:      f.slot,
		log:       f.log.With().Str("job", id).Logger(),
	}
}

// ReportWorker generates the report of one game.
type ReportWorker struct {
	mu       sync.Mutex
	report   report.Report
	err      error
	done     bool
	progress float64

	id        string
	game      positions.Game
	opts      report.Options
	evaluator report.Evaluator
	ctx       context.Context
	slot      chan struct{}
	log       zerolog.Logger
}

func (w *ReportWorker) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *ReportWorker) StartWork() {
	go w.Generate()
}

func (w *ReportWorker) Result() interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.report
}

func (w *ReportWorker) Progress() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}

func (w *ReportWorker) Error() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Generate waits for its turn and builds the report.
func (w *ReportWorker) Generate() {
	select {
	case w.slot <- struct{}{}:
		defer func() { <-w.slot }()
	case <-w.ctx.Done():
		w.finish(report.Report{}, w.ctx.Err())
		return
	}

	w.log.Info().Int("positions", len(w.game.Positions)).Msg("report started")
	rep, err := report.Generate(w.ctx, w.evaluator, w.game, w.opts, func(done, total int) {
		w.mu.Lock()
		w.progress = float64(done) / float64(total)
		w.mu.Unlock()
	})
	if err != nil {
		w.log.Error().Err(err).Msg("report failed")
		w.finish(report.Report{}, fmt.Errorf("generating report: %w", err))
		return
	}
	w.log.Info().Msg("report finished")
	w.finish(rep, nil)
}

func (w *ReportWorker) finish(rep report.Report, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.report = rep
	w.err = err
	w.done = true
	if err == nil {
		w.progress = 1
	}
}
