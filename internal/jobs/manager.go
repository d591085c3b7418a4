package jobs

import (
	"errors"
	"sync"

	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
	"github.com/google/uuid"
)

var ErrEmptyGame = errors.New("game has no positions")

// Status is a snapshot of one job. Result is set once the job is done
// without error.
type Status struct {
	ID       string      `json:"job_id"`
	Done     bool        `json:"done"`
	Progress float64     `json:"progress"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Manager keeps the running jobs. A finished job is forgotten once its
// final status has been read.
type Manager struct {
	factory *ReportWorkerFactory

	mu         sync.RWMutex
	activeJobs map[string]Worker
}

func NewManager(factory *ReportWorkerFactory) *Manager {
	return &Manager{
		factory:    factory,
		activeJobs: make(map[string]Worker),
	}
}

// Start queues a report of game and returns the job id.
func (m *Manager) Start(game positions.Game, opts report.Options) (string, error) {
	if len(game.Positions) == 0 {
		return "", ErrEmptyGame
	}
	id := uuid.NewString()
	worker := m.factory.CreateReportWorker(id, game, opts)

	m.mu.Lock()
	m.activeJobs[id] = worker
	m.mu.Unlock()

	worker.StartWork()
	return id, nil
}

// Get returns the status of job id.
func (m *Manager) Get(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	worker, ok := m.activeJobs[id]
	if !ok {
		return Status{}, false
	}

	st := Status{ID: id, Done: worker.Done(), Progress: worker.Progress()}
	if !st.Done {
		return st, true
	}
	delete(m.activeJobs, id)
	if err := worker.Error(); err != nil {
		st.Error = err.Error()
	} else {
		st.Result = worker.Result()
	}
	return st, true
}

// Active counts the jobs not yet collected.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeJobs)
}
