package engine_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *engine.Process {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	p, err := engine.Start(context.Background(), sh, zerolog.Nop(), "-c", script)
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, lines <-chan string) []string {
	t.Helper()
	var res []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				return res
			}
			res = append(res, l)
		case <-timeout:
			t.Fatal("engine output did not end")
			return res
		}
	}
}

func TestProcessReportsExitStatus(t *testing.T) {
	p := startShell(t, `read cmd; echo "got $cmd"; echo oops >&2; exit 3`)
	require.NoError(t, p.Send("uci"))

	assert.Equal(t, []string{"got uci"}, collect(t, p.Lines()))
	var exitErr *exec.ExitError
	require.True(t, errors.As(p.Err(), &exitErr), "err: %v", p.Err())
	assert.Equal(t, 3, exitErr.ExitCode())

	start := time.Now()
	assert.NoError(t, p.Close())
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcessCloseEndsEngine(t *testing.T) {
	p := startShell(t, `while read cmd; do echo "$cmd"; done`)
	require.NoError(t, p.Send("isready"))
	assert.Equal(t, "isready", <-p.Lines())

	require.NoError(t, p.Close())
	assert.Empty(t, collect(t, p.Lines()))
	assert.NoError(t, p.Err())
	assert.ErrorIs(t, p.Send("quit"), engine.ErrClosed)
	assert.NoError(t, p.Close())
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := engine.Start(context.Background(), "/nonexistent/engine", zerolog.Nop())
	assert.Error(t, err)
	_, err = engine.Start(context.Background(), "", zerolog.Nop())
	assert.Error(t, err)
}
