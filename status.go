package chessanalysis

import "github.com/gmkornilov/chess-analysis-backend/pkg/analysis"

// Status is what a display needs to show the engine's condition.
type Status struct {
	Ready     bool   `json:"ready"`
	Busy      bool   `json:"busy"`
	State     string `json:"state"`
	RequestID uint64 `json:"request_id,omitempty"`
	Engine    string `json:"engine,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (c *Client) Status() Status {
	s := Status{
		Ready:  c.session.Ready(),
		State:  c.coord.State().String(),
		Engine: c.session.Name(),
	}
	if id, ok := c.coord.ActiveRequestID(); ok {
		s.Busy = true
		s.RequestID = id
	}

	c.mu.Lock()
	initErr := c.initErr
	c.mu.Unlock()

	last := c.coord.LastOutcome()
	switch {
	case initErr != nil:
		s.Error = initErr.Error()
	case last.State == analysis.Failed || last.State == analysis.TimedOut:
		s.Error = last.Err.Error()
	}
	return s
}
