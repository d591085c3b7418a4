package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/display"
	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/rs/zerolog"
)

type AnalysisApi struct {
	Client *chessanalysis.Client
	log    zerolog.Logger
}

func NewAnalysisApi(client *chessanalysis.Client, log zerolog.Logger) *AnalysisApi {
	return &AnalysisApi{
		Client: client,
		log:    log.With().Str("component", "api").Logger(),
	}
}

type positionsRequest struct {
	Record string `json:"record"`
}

func (a *AnalysisApi) Positions(ctx *gin.Context) {
	var req positionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortWithError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	all, err := chessanalysis.DerivePositions(req.Record)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"positions": all,
	})
}

// analysisRequest names a position either by FEN or by a game record and a
// ply index (the last ply when omitted).
type analysisRequest struct {
	FEN       string `json:"fen"`
	Record    string `json:"record"`
	Ply       *int   `json:"ply"`
	Depth     int    `json:"depth"`
	Lines     int    `json:"lines"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (r analysisRequest) position() (positions.Position, error) {
	if r.FEN != "" {
		return positions.Position{FEN: r.FEN}, nil
	}
	if r.Record == "" && r.Ply == nil {
		return positions.Position{}, fmt.Errorf("%w: fen or record is required", errBadRequest)
	}
	all, err := chessanalysis.DerivePositions(r.Record)
	if err != nil {
		return positions.Position{}, err
	}
	ply := -1
	if r.Ply != nil {
		ply = *r.Ply
	}
	return chessanalysis.PositionAt(all, ply)
}

func (r analysisRequest) options() chessanalysis.Options {
	return chessanalysis.Options{
		Depth:   r.Depth,
		Lines:   r.Lines,
		Timeout: time.Duration(r.TimeoutMs) * time.Millisecond,
	}
}

type analysisResponse struct {
	analysis.Result
	Display *display.Evaluation `json:"display,omitempty"`
}

// Analyze runs one analysis and answers with its result. A request arriving
// while another runs supersedes it; the superseded caller gets 409.
func (a *AnalysisApi) Analyze(ctx *gin.Context) {
	var req analysisRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortWithError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	pos, err := req.position()
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if !a.Client.Status().Ready {
		abortWithError(ctx, engine.ErrNotReady)
		return
	}

	res, err := a.Client.Analyze(ctx.Request.Context(), pos, req.options())
	if err != nil {
		a.log.Debug().Err(err).Str("fen", pos.FEN).Msg("analysis rejected")
		abortWithError(ctx, err)
		return
	}
	resp := analysisResponse{Result: res}
	if best, ok := res.Best(); ok {
		ev := display.Describe(best.Score, pos.WhiteToMove())
		resp.Display = &ev
	}
	ctx.JSON(http.StatusOK, resp)
}

func (a *AnalysisApi) Stop(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"stopped": a.Client.Stop(),
	})
}

func (a *AnalysisApi) Status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, a.Client.Status())
}

type liveSnapshot struct {
	analysis.Snapshot
	Display *display.Evaluation `json:"display,omitempty"`
}

func liveOf(s analysis.Snapshot) liveSnapshot {
	live := liveSnapshot{Snapshot: s}
	if best, ok := s.Best(); ok {
		ev := display.Describe(best.Score, positions.Position{FEN: s.FEN}.WhiteToMove())
		live.Display = &ev
	}
	return live
}

// Live streams snapshots as server-sent events until the client leaves.
func (a *AnalysisApi) Live(ctx *gin.Context) {
	snapshots, unsubscribe := a.Client.Subscribe()
	defer unsubscribe()

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Status(http.StatusOK)
	ctx.Writer.Flush()

	for {
		select {
		case <-ctx.Request.Context().Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			ctx.SSEvent("snapshot", liveOf(snap))
			ctx.Writer.Flush()
		}
	}
}
