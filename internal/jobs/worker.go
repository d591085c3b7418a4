// Package jobs runs whole-game reports in the background.
package jobs

type Worker interface {
	StartWork()
	Result() interface{}
	Progress() float64
	Done() bool
	Error() error
}
