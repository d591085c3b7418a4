// Package api exposes position derivation, live analysis and report jobs
// over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func NewRouter(analysisApi *AnalysisApi, reportApi *ReportApi, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", analysisApi.Status)
	r.POST("/positions", analysisApi.Positions)
	r.POST("/analysis", analysisApi.Analyze)
	r.DELETE("/analysis", analysisApi.Stop)
	r.GET("/analysis/live", analysisApi.Live)
	r.POST("/reports", reportApi.StartReport)
	r.GET("/reports/:job_id", reportApi.GetJobStatus)
	return r
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.Info().
			Str("method", ctx.Request.Method).
			Str("path", ctx.FullPath()).
			Int("status", ctx.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
