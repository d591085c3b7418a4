package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/jobs"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
)

type ReportApi struct {
	Jobs *jobs.Manager
}

func NewReportApi(manager *jobs.Manager) *ReportApi {
	return &ReportApi{Jobs: manager}
}

type reportRequest struct {
	Record string `json:"record"`
	Depth  int    `json:"depth"`
	Lines  int    `json:"lines"`
}

func (t *ReportApi) StartReport(ctx *gin.Context) {
	var req reportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abortWithError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.Depth < 0 || req.Lines < 0 {
		abortWithError(ctx, fmt.Errorf("%w: depth and lines must not be negative", chessanalysis.ErrInvalidOptions))
		return
	}
	all, err := chessanalysis.DerivePositions(req.Record)
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	id, err := t.Jobs.Start(positions.Game{Positions: all}, report.Options{Depth: req.Depth, Lines: req.Lines})
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{
		"job_id": id,
	})
}

func (t *ReportApi) GetJobStatus(ctx *gin.Context) {
	st, ok := t.Jobs.Get(ctx.Param("job_id"))
	if !ok {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}
	ctx.JSON(http.StatusOK, st)
}
