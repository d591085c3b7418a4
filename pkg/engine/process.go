package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxLineSize = 1 << 20
	exitTimeout = 3 * time.Second
)

// Process is a Channel backed by an engine executable's stdin and stdout.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	log    zerolog.Logger
	exited chan struct{} // closed once the process has been waited for

	mu     sync.Mutex
	closed bool
	err    error
}

// Exec returns an Opener that starts the executable at path.
func Exec(path string, log zerolog.Logger, args ...string) Opener {
	return func(ctx context.Context) (Channel, error) {
		return Start(ctx, path, log, args...)
	}
}

// Start launches the engine executable. The process outlives ctx; it is only
// consulted before the process is started.
func Start(ctx context.Context, path string, log zerolog.Logger, args ...string) (*Process, error) {
	if path == "" {
		return nil, errors.New("engine path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 256),
		log:    log.With().Str("engine", path).Int("pid", cmd.Process.Pid).Logger(),
		exited: make(chan struct{}),
	}
	stderrDone := make(chan struct{})
	go p.readStderr(stderr, stderrDone)
	go p.readStdout(stdout, stderrDone)
	p.log.Debug().Msg("engine process started")
	return p, nil
}

// readStdout forwards output lines and reaps the process once both pipes
// are drained, so Err reports the exit status by the time Lines closes.
func (p *Process) readStdout(r io.Reader, stderrDone <-chan struct{}) {
	defer close(p.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.lines <- strings.TrimRight(scanner.Text(), "\r")
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// unblock the engine so it can exit
		_, _ = io.Copy(io.Discard, r)
	}
	<-stderrDone
	waitErr := p.cmd.Wait()
	close(p.exited)

	p.mu.Lock()
	p.err = scanErr
	if p.err == nil && !p.closed {
		p.err = waitErr
	}
	p.mu.Unlock()
	p.log.Debug().AnErr("exit", waitErr).Msg("engine process exited")
}

func (p *Process) readStderr(r io.Reader, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.log.Debug().Str("stderr", scanner.Text()).Msg("engine stderr")
	}
	_, _ = io.Copy(io.Discard, r)
}

func (p *Process) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := io.WriteString(p.stdin, line)
	return err
}

func (p *Process) Lines() <-chan string {
	return p.lines
}

func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close closes stdin and waits for the process to exit, killing it if it
// does not within a few seconds.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	_ = p.stdin.Close()
	p.mu.Unlock()

	select {
	case <-p.exited:
		return nil
	case <-time.After(exitTimeout):
		_ = p.cmd.Process.Kill()
		<-p.exited
		return errors.New("engine did not exit in time")
	}
}
