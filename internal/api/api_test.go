package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/jobs"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine/enginetest"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, initialize bool) (*gin.Engine, *enginetest.Engine) {
	t.Helper()
	stub := enginetest.New()
	client := chessanalysis.New(stub.Opener(), chessanalysis.Config{}, zerolog.Nop())
	if initialize {
		require.NoError(t, client.Initialize(context.Background()))
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = client.Close()
	})
	manager := jobs.NewManager(jobs.NewReportWorkerFactory(ctx, client, report.DefaultOptions, zerolog.Nop()))
	return NewRouter(NewAnalysisApi(client, zerolog.Nop()), NewReportApi(manager), zerolog.Nop()), stub
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestHealthz(t *testing.T) {
	r, _ := newRouter(t, true)
	code, body := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestPositions(t *testing.T) {
	r, _ := newRouter(t, true)

	code, body := do(t, r, http.MethodPost, "/positions", `{"record":"1. e4 e5"}`)
	require.Equal(t, http.StatusOK, code)
	all := body["positions"].([]interface{})
	require.Len(t, all, 3)
	assert.Equal(t, positions.StartFEN, all[0].(map[string]interface{})["fen"])
	assert.Equal(t, "e5", all[2].(map[string]interface{})["san"])

	code, body = do(t, r, http.MethodPost, "/positions", `{"record":"1. e4 e5 2. Ke3"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Ke3", body["token"])
	assert.Equal(t, 2.0, body["index"])

	code, _ = do(t, r, http.MethodPost, "/positions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalyzeFEN(t *testing.T) {
	r, stub := newRouter(t, true)
	stub.Script("info depth 12 multipv 1 score cp 35 nodes 1000 pv e2e4 e7e5", "bestmove e2e4 ponder e7e5")

	code, body := do(t, r, http.MethodPost, "/analysis", `{"fen":"`+positions.StartFEN+`","depth":12}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "e2e4", body["best_move"])
	assert.Equal(t, "e7e5", body["ponder"])
	assert.Equal(t, 12.0, body["depth"])
	lines := body["lines"].([]interface{})
	require.Len(t, lines, 1)
	assert.Equal(t, map[string]interface{}{"kind": "cp", "value": 35.0}, lines[0].(map[string]interface{})["score"])

	disp := body["display"].(map[string]interface{})
	assert.Equal(t, "+0.4", disp["label"])
	assert.InDelta(t, 53.5, disp["white_share"], 1e-9)
	assert.Contains(t, stub.Sent(), "go depth 12")
}

func TestAnalyzeRecordPly(t *testing.T) {
	r, stub := newRouter(t, true)
	stub.Script("info depth 8 score cp 20 pv e7e5", "bestmove e7e5")

	code, body := do(t, r, http.MethodPost, "/analysis", `{"record":"1. e4","ply":1,"depth":8,"lines":2}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "-0.2", body["display"].(map[string]interface{})["label"])
	assert.Contains(t, stub.Sent(), "setoption name MultiPV value 2")
	assert.Contains(t, stub.Sent(), "go multipv 2 depth 8")
}

func TestAnalyzeBadRequests(t *testing.T) {
	r, _ := newRouter(t, true)
	tests := []struct {
		name string
		body string
	}{
		{"no position", `{}`},
		{"negative depth", `{"fen":"` + positions.StartFEN + `","depth":-3}`},
		{"too many lines", `{"fen":"` + positions.StartFEN + `","lines":501}`},
		{"illegal record", `{"record":"1. e5"}`},
		{"ply out of range", `{"record":"1. e4","ply":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, r, http.MethodPost, "/analysis", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAnalyzeNotReady(t *testing.T) {
	r, _ := newRouter(t, false)
	code, body := do(t, r, http.MethodPost, "/analysis", `{"fen":"`+positions.StartFEN+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "engine not ready", body["error"])
}

func TestAnalyzeTimeout(t *testing.T) {
	r, _ := newRouter(t, true)
	code, _ := do(t, r, http.MethodPost, "/analysis", `{"fen":"`+positions.StartFEN+`","timeout_ms":50}`)
	assert.Equal(t, http.StatusGatewayTimeout, code)
}

func TestAnalyzeEngineFailure(t *testing.T) {
	r, stub := newRouter(t, true)
	codes := make(chan int, 1)
	go func() {
		code, _ := do(t, r, http.MethodPost, "/analysis", `{"fen":"`+positions.StartFEN+`"}`)
		codes <- code
	}()
	require.Eventually(t, stub.Running, time.Second, 5*time.Millisecond)
	stub.Crash(errors.New("segfault"))
	assert.Equal(t, http.StatusBadGateway, <-codes)
}

func TestSupersededAndStopped(t *testing.T) {
	r, stub := newRouter(t, true)
	codes := make(chan int, 1)
	go func() {
		code, _ := do(t, r, http.MethodPost, "/analysis", `{"fen":"`+positions.StartFEN+`"}`)
		codes <- code
	}()
	require.Eventually(t, stub.Running, time.Second, 5*time.Millisecond)

	stub.Script("info depth 5 score cp -10 pv e7e5", "bestmove e7e5")
	code, body := do(t, r, http.MethodPost, "/analysis", `{"record":"1. e4","depth":5}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "e7e5", body["best_move"])
	assert.Equal(t, http.StatusConflict, <-codes)

	go func() {
		code, _ := do(t, r, http.MethodPost, "/analysis", `{"fen":"`+positions.StartFEN+`"}`)
		codes <- code
	}()
	require.Eventually(t, stub.Running, time.Second, 5*time.Millisecond)
	code, body = do(t, r, http.MethodDelete, "/analysis", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["stopped"])
	assert.Equal(t, http.StatusConflict, <-codes)

	_, body = do(t, r, http.MethodDelete, "/analysis", "")
	assert.Equal(t, false, body["stopped"])
}

func TestStatus(t *testing.T) {
	r, _ := newRouter(t, true)
	code, body := do(t, r, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, false, body["busy"])
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "Stub Engine", body["engine"])
}

func TestReports(t *testing.T) {
	r, stub := newRouter(t, true)
	stub.Script("info depth 4 score cp 30 pv e2e4", "bestmove e2e4")
	stub.Script("info depth 4 score cp -25 pv e7e5", "bestmove e7e5")
	stub.Script("info depth 4 score cp 30 pv g1f3", "bestmove g1f3")

	code, body := do(t, r, http.MethodPost, "/reports", `{"record":"1. e4 e5","depth":4}`)
	require.Equal(t, http.StatusAccepted, code, body)
	id := body["job_id"].(string)
	require.NotEmpty(t, id)

	var status map[string]interface{}
	require.Eventually(t, func() bool {
		code, status = do(t, r, http.MethodGet, "/reports/"+id, "")
		return code == http.StatusOK && status["done"] == true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, status["error"])
	result := status["result"].(map[string]interface{})
	plies := result["plies"].([]interface{})
	require.Len(t, plies, 3)
	assert.Equal(t, "best", plies[1].(map[string]interface{})["judgement"])

	code, _ = do(t, r, http.MethodGet, "/reports/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReportBadRequests(t *testing.T) {
	r, _ := newRouter(t, true)
	code, _ := do(t, r, http.MethodPost, "/reports", `{"record":"1. e4 e4"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodPost, "/reports", `{"record":"1. e4","depth":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodGet, "/reports/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLiveStream(t *testing.T) {
	r, stub := newRouter(t, true)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/analysis/live", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stub.Script("info depth 3 score cp 15 pv d2d4", "bestmove d2d4")
	go func() {
		resp, err := http.Post(srv.URL+"/analysis", "application/json", strings.NewReader(`{"fen":"`+positions.StartFEN+`","depth":3}`))
		if err == nil {
			resp.Body.Close()
		}
	}()

	sc := bufio.NewScanner(resp.Body)
	var events []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, `"d2d4"`) {
			assert.Contains(t, line, `"label":"+0.2"`)
			break
		}
	}
	require.NoError(t, sc.Err())
	assert.Contains(t, events, "snapshot")
}
