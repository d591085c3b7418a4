package chessanalysis

import (
	"errors"
	"fmt"
	"time"
)

// MaxLines is the largest MultiPV value engines accept.
const MaxLines = 500

var ErrInvalidOptions = errors.New("invalid analysis options")

// Options of one analysis call. Zero fields take the client defaults.
type Options struct {
	Depth   int           `json:"depth" yaml:"depth"`
	Lines   int           `json:"lines" yaml:"lines"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

var DefaultOptions = Options{
	Depth:   15,
	Lines:   1,
	Timeout: 60 * time.Second,
}

// WithDefaults fills the zero fields of o from defaults.
func (o Options) WithDefaults(defaults Options) Options {
	if o.Depth == 0 {
		o.Depth = defaults.Depth
	}
	if o.Lines == 0 {
		o.Lines = defaults.Lines
	}
	if o.Timeout == 0 {
		o.Timeout = defaults.Timeout
	}
	return o
}

func (o Options) Validate() error {
	switch {
	case o.Depth <= 0:
		return fmt.Errorf("%w: depth must be positive, got %d", ErrInvalidOptions, o.Depth)
	case o.Lines <= 0 || o.Lines > MaxLines:
		return fmt.Errorf("%w: lines must be between 1 and %d, got %d", ErrInvalidOptions, MaxLines, o.Lines)
	case o.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidOptions, o.Timeout)
	}
	return nil
}
