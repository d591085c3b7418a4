package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine/enginetest"
	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const afterE4E5Nf3 = "rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2"

func newCoordinator(t *testing.T) (*Coordinator, *engine.Session, *enginetest.Engine) {
	t.Helper()
	stub := enginetest.New()
	session := engine.NewSession(stub.Opener(), engine.Config{}, zerolog.Nop())
	c := NewCoordinator(session, zerolog.Nop())
	require.NoError(t, session.Initialize(context.Background()))
	t.Cleanup(func() {
		c.Close()
		_ = session.Shutdown()
	})
	return c, session, stub
}

type call struct {
	res Result
	err error
}

func analyzeAsync(c *Coordinator, params Params) <-chan call {
	out := make(chan call, 1)
	go func() {
		res, err := c.Analyze(context.Background(), params)
		out <- call{res, err}
	}()
	return out
}

func waitCall(t *testing.T, ch <-chan call) call {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("analysis did not finish")
		return call{}
	}
}

func TestAnalyzeCompletes(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script("info depth 10 score cp 20 pv g8f6", "bestmove g8f6")

	res, err := c.Analyze(context.Background(), Params{FEN: afterE4E5Nf3, Depth: 10, Lines: 1})
	require.NoError(t, err)
	assert.Equal(t, "g8f6", res.BestMove)
	assert.Equal(t, uint64(1), res.RequestID)
	assert.Equal(t, 10, res.Depth)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, Line{
		Rank:  1,
		Score: protocol.Score{Kind: protocol.Centipawns, Value: 20},
		PV:    []string{"g8f6"},
		Depth: 10,
	}, res.Lines[0])

	assert.Equal(t, []string{
		"stop",
		"setoption name MultiPV value 1",
		"position fen " + afterE4E5Nf3,
		"go depth 10",
	}, stub.Sent()[2:])
	assert.Equal(t, Completed, c.State())
	assert.Equal(t, Outcome{RequestID: 1, State: Completed}, c.LastOutcome())
}

func TestAnalyzeLastDepthWinsPerRank(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script(
		"info depth 1 multipv 1 score cp 10 pv e2e4",
		"info depth 1 multipv 2 score cp 5 pv d2d4",
		"info depth 2 multipv 2 score cp 8 pv c2c4 e7e5",
		"info depth 2 multipv 1 score cp 15 pv e2e4 e7e5 g1f3",
		"info depth 2 multipv 1 score cp 16 pv e2e4 c7c5",
		"bestmove e2e4 ponder c7c5",
	)

	res, err := c.Analyze(context.Background(), Params{FEN: "startpos-fen", Depth: 2, Lines: 2})
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, 1, res.Lines[0].Rank)
	assert.Equal(t, []string{"e2e4", "c7c5"}, res.Lines[0].PV)
	assert.Equal(t, 16, res.Lines[0].Score.Value)
	assert.Equal(t, 2, res.Lines[1].Rank)
	assert.Equal(t, []string{"c2c4", "e7e5"}, res.Lines[1].PV)
	assert.Equal(t, "c7c5", res.Ponder)

	assert.Contains(t, stub.Sent(), "go multipv 2 depth 2")
	assert.Contains(t, stub.Sent(), "setoption name MultiPV value 2")
}

func TestAnalyzeAcceptsRankGaps(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script(
		"info depth 3 multipv 4 score cp -40 pv a2a3",
		"info depth 3 multipv 2 score cp 12 pv g1f3",
		"bestmove g1f3",
	)

	res, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 3, Lines: 4})
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, 2, res.Lines[0].Rank)
	assert.Equal(t, 4, res.Lines[1].Rank)
	assert.Equal(t, "g1f3", res.BestMove)
}

func TestAnalyzeBestMoveFallsBackWithoutFirstRank(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script(
		"info depth 6 multipv 2 score cp 10 pv a2a3",
		"info depth 6 multipv 3 score cp 4 pv h2h3",
		"bestmove e2e4",
	)

	res, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 6, Lines: 3})
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "e2e4", res.BestMove)
}

func TestAnalyzeBestMoveWithoutLines(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script("info string no search needed", "bestmove e2e4")
	stub.Script("bestmove (none)")

	res, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 1, Lines: 1})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", res.BestMove)
	assert.Empty(t, res.Lines)

	res, err = c.Analyze(context.Background(), Params{FEN: "mated", Depth: 1, Lines: 1})
	require.NoError(t, err)
	assert.Empty(t, res.BestMove)
}

func TestAnalyzeIgnoresMalformedInfo(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script(
		"info depth 5 score cp 30 pv e2e4",
		"info depth 6 score cp pv e2e4",
		"info depth 6 seldepth 9 nodes 1200",
		"bestmove e2e4",
	)

	res, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 6, Lines: 1})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, 5, res.Lines[0].Depth)
	assert.Equal(t, 30, res.Lines[0].Score.Value)
}

func TestAnalyzeRejectsInvalidParams(t *testing.T) {
	c, _, _ := newCoordinator(t)
	for _, p := range []Params{
		{FEN: "", Depth: 1, Lines: 1},
		{FEN: "fen", Depth: 0, Lines: 1},
		{FEN: "fen", Depth: 1, Lines: 0},
	} {
		_, err := c.Analyze(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestNewRequestSupersedesActive(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.Script("info depth 4 score cp 50 pv d2d4")

	first := analyzeAsync(c, Params{FEN: "first", Depth: 20, Lines: 1})
	require.Eventually(t, func() bool { return len(c.Latest().Lines) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Streaming, c.State())

	stub.Script("info depth 3 score cp 5 pv g1f3", "bestmove g1f3")
	res, err := c.Analyze(context.Background(), Params{FEN: "second", Depth: 3, Lines: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.RequestID)
	assert.Equal(t, "g1f3", res.BestMove)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, []string{"g1f3"}, res.Lines[0].PV)

	got := waitCall(t, first)
	var cerr *CancelledError
	require.True(t, errors.As(got.err, &cerr))
	assert.Equal(t, uint64(1), cerr.RequestID)
	assert.Equal(t, ReasonSuperseded, cerr.Reason)
	assert.ErrorIs(t, got.err, ErrCancelled)
}

func TestLateOutputOfSupersededSearchIsDiscarded(t *testing.T) {
	c, _, stub := newCoordinator(t)
	stub.StopMove = ""

	first := analyzeAsync(c, Params{FEN: "first", Depth: 20, Lines: 1})
	require.Eventually(t, func() bool { return len(stub.SentWithPrefix("go")) == 1 }, time.Second, 5*time.Millisecond)

	second := analyzeAsync(c, Params{FEN: "second", Depth: 8, Lines: 1})
	require.Eventually(t, func() bool { return len(stub.SentWithPrefix("go")) == 2 }, time.Second, 5*time.Millisecond)

	got := waitCall(t, first)
	assert.ErrorIs(t, got.err, ErrCancelled)

	// the first search answers the stop only now
	stub.Emit("info depth 21 score mate 4 pv a2a3", "bestmove a2a3")
	stub.Emit("info depth 8 score cp 11 pv e2e4", "bestmove e2e4")

	got = waitCall(t, second)
	require.NoError(t, got.err)
	assert.Equal(t, "e2e4", got.res.BestMove)
	require.Len(t, got.res.Lines, 1)
	assert.Equal(t, []string{"e2e4"}, got.res.Lines[0].PV)
	assert.Equal(t, protocol.Centipawns, got.res.Lines[0].Score.Kind)
}

func TestTimeoutLeavesSessionUsable(t *testing.T) {
	c, session, stub := newCoordinator(t)

	_, err := c.Analyze(context.Background(), Params{FEN: "slow", Depth: 30, Lines: 1, Timeout: 30 * time.Millisecond})
	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(1), terr.RequestID)
	assert.Equal(t, TimedOut, c.State())
	assert.True(t, session.Ready())
	require.Eventually(t, func() bool { return !stub.Running() }, time.Second, 5*time.Millisecond)

	stub.Script("info depth 2 score cp 3 pv e2e4", "bestmove e2e4")
	res, err := c.Analyze(context.Background(), Params{FEN: "fast", Depth: 2, Lines: 1})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", res.BestMove)
}

func TestStopCancelsActive(t *testing.T) {
	c, _, stub := newCoordinator(t)
	assert.False(t, c.Stop())

	pending := analyzeAsync(c, Params{FEN: "fen", Depth: 30, Lines: 1})
	require.Eventually(t, func() bool { return stub.Running() }, time.Second, 5*time.Millisecond)

	assert.True(t, c.Stop())
	got := waitCall(t, pending)
	var cerr *CancelledError
	require.True(t, errors.As(got.err, &cerr))
	assert.Equal(t, ReasonStopped, cerr.Reason)
	assert.Equal(t, Cancelled, c.State())
	_, active := c.ActiveRequestID()
	assert.False(t, active)
}

func TestContextCancellation(t *testing.T) {
	c, _, stub := newCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.Analyze(ctx, Params{FEN: "fen", Depth: 30, Lines: 1})
		done <- err
	}()
	require.Eventually(t, func() bool { return stub.Running() }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	var cerr *CancelledError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ReasonContext, cerr.Reason)
}

func TestEngineFailureFailsActive(t *testing.T) {
	c, _, stub := newCoordinator(t)

	pending := analyzeAsync(c, Params{FEN: "fen", Depth: 30, Lines: 1})
	require.Eventually(t, func() bool { return stub.Running() }, time.Second, 5*time.Millisecond)
	stub.Crash(enginetest.ErrCrashed)

	got := waitCall(t, pending)
	assert.ErrorIs(t, got.err, ErrEngine)
	assert.ErrorIs(t, got.err, enginetest.ErrCrashed)
	assert.Equal(t, Failed, c.State())
}

func TestAnalyzeAfterEngineFailureFailsAtOnce(t *testing.T) {
	c, session, stub := newCoordinator(t)
	stub.Crash(enginetest.ErrCrashed)
	require.Eventually(t, func() bool { return !session.Ready() }, time.Second, 5*time.Millisecond)

	start := time.Now()
	_, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 10, Lines: 1, Timeout: 5 * time.Second})
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, engine.ErrNotReady)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Failed, c.State())

	require.NoError(t, session.Initialize(context.Background()))
	stub.Script("info depth 10 score cp 5 pv e2e4", "bestmove e2e4")
	res, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 10, Lines: 1})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", res.BestMove)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	c, _, stub := newCoordinator(t)
	snaps, unsubscribe := c.Subscribe()
	defer unsubscribe()

	stub.Script("info depth 1 score cp 10 pv e2e4")
	pending := analyzeAsync(c, Params{FEN: "fen", Depth: 5, Lines: 1})

	require.Eventually(t, func() bool {
		select {
		case s := <-snaps:
			return s.RequestID == 1 && len(s.Lines) == 1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	id, ok := c.ActiveRequestID()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), id)

	stub.Emit("info depth 2 score cp 12 pv e2e4 e7e5", "bestmove e2e4")
	require.NoError(t, waitCall(t, pending).err)

	latest := c.Latest()
	assert.Equal(t, Completed, latest.State)
	require.Len(t, latest.Lines, 1)
	assert.Equal(t, 2, latest.Lines[0].Depth)

	unsubscribe()
	_, open := <-snaps
	for open {
		_, open = <-snaps
	}
}

func TestCloseCancelsActive(t *testing.T) {
	c, _, stub := newCoordinator(t)
	pending := analyzeAsync(c, Params{FEN: "fen", Depth: 30, Lines: 1})
	require.Eventually(t, func() bool { return stub.Running() }, time.Second, 5*time.Millisecond)

	c.Close()
	got := waitCall(t, pending)
	assert.ErrorIs(t, got.err, ErrCancelled)

	_, err := c.Analyze(context.Background(), Params{FEN: "fen", Depth: 1, Lines: 1})
	assert.ErrorIs(t, err, engine.ErrClosed)
}
