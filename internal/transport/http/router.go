// Package http exposes the quiz session service over REST and websockets.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
)

// OwnerHeader carries the caller's identity for host-only operations.
const OwnerHeader = "X-User-ID"

type RouterDeps struct {
	Service     *app.QuizService
	Library     *app.LibraryService
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	CORSOrigins []string
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  d.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type", "Content-Length", "Accept", "Origin", OwnerHeader},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	quizzes := NewQuizHandler(d.Service)
	library := NewLibraryHandler(d.Library)
	ws := NewWSHandler(d.Service)

	api := r.Group("/api")
	api.POST("/quizzes", quizzes.Create)
	api.GET("/quizzes/:code", quizzes.Get)
	api.DELETE("/quizzes/:code", quizzes.Delete)
	api.POST("/quizzes/:code/players", quizzes.Join)
	api.POST("/quizzes/:code/start", quizzes.Start)
	api.POST("/quizzes/:code/advance", quizzes.Advance)
	api.POST("/quizzes/:code/answers", quizzes.SubmitAnswer)
	api.POST("/quizzes/:code/results", quizzes.RecordResults)
	api.GET("/quizzes/:code/leaderboard", library.Leaderboard)
	api.GET("/owners/:ownerId/quizzes", library.List)
	api.GET("/owners/:ownerId/stats", library.Stats)
	api.GET("/players/:playerId/results", library.PlayerResults)

	r.GET("/ws", gin.WrapF(ws.ServeWS))
	return r
}

// requestLogger attaches a request-scoped logger and logs one line per request.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()
		c.Request = c.Request.WithContext(logging.IntoContext(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		evt := reqLogger.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			evt = reqLogger.Error()
		case status >= http.StatusBadRequest:
			evt = reqLogger.Info()
		}
		evt.Int("status", status).Dur("latency", time.Since(start)).Msg("request")
	}
}
