package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/jobs"
	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
)

var errBadRequest = errors.New("bad request")

func statusOf(err error) int {
	var parseErr *positions.ParseError
	switch {
	case errors.As(err, &parseErr),
		errors.Is(err, errBadRequest),
		errors.Is(err, chessanalysis.ErrInvalidOptions),
		errors.Is(err, analysis.ErrInvalidRequest),
		errors.Is(err, positions.ErrOutOfRange),
		errors.Is(err, jobs.ErrEmptyGame):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotReady), errors.Is(err, engine.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, analysis.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, analysis.ErrEngine):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(ctx *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var parseErr *positions.ParseError
	if errors.As(err, &parseErr) {
		body["token"] = parseErr.Token
		body["index"] = parseErr.Index
	}
	ctx.AbortWithStatusJSON(statusOf(err), body)
}
