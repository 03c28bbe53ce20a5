package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

type LibraryHandler struct {
	library *app.LibraryService
}

func NewLibraryHandler(library *app.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// List returns the owner's quizzes; ?q= narrows by title.
func (h *LibraryHandler) List(c *gin.Context) {
	owner := c.Param("ownerId")
	var (
		quizzes []app.QuizSummary
		err     error
	)
	if term := c.Query("q"); term != "" {
		quizzes, err = h.library.Search(c.Request.Context(), owner, term)
	} else {
		quizzes, err = h.library.ListQuizzes(c.Request.Context(), owner)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

func (h *LibraryHandler) Stats(c *gin.Context) {
	stats, err := h.library.Stats(c.Request.Context(), c.Param("ownerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *LibraryHandler) Leaderboard(c *gin.Context) {
	results, err := h.library.QuizLeaderboard(c.Request.Context(), quizCode(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": nonNil(results)})
}

func (h *LibraryHandler) PlayerResults(c *gin.Context) {
	results, err := h.library.PlayerResults(c.Request.Context(), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": nonNil(results)})
}

func nonNil(results []domain.ResultRecord) []domain.ResultRecord {
	if results == nil {
		return []domain.ResultRecord{}
	}
	return results
}
