package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sethvargo/go-retry"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// Join is idempotent per player, so a lost race on the quiz version is retried.
const (
	joinRetries    = 3
	joinRetryDelay = 10 * time.Millisecond
)

type QuizHandler struct {
	service *app.QuizService
}

func NewQuizHandler(service *app.QuizService) *QuizHandler {
	return &QuizHandler{service: service}
}

type createQuizRequest struct {
	Title     string            `json:"title"`
	Questions []domain.Question `json:"questions"`
}

type joinRequest struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

type advanceRequest struct {
	FromQuestionIndex *int `json:"fromQuestionIndex"`
}

type answerRequest struct {
	PlayerID            string `json:"playerId"`
	QuestionIndex       int    `json:"questionIndex"`
	SelectedOptionIndex int    `json:"selectedOptionIndex"`
}

type questionView struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correctOptionIndex,omitempty"`
}

// quizView is a quiz as shown to clients. Correct options are only revealed to the owner.
type quizView struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	OwnerID              string          `json:"ownerId"`
	Status               domain.Status   `json:"status"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	Questions            []questionView  `json:"questions"`
	Players              []domain.Player `json:"players"`
	UsageCount           int             `json:"usageCount"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	Version              int64           `json:"version"`
}

type advanceResponse struct {
	Quiz        quizView            `json:"quiz"`
	Finished    bool                `json:"finished"`
	Leaderboard *domain.Leaderboard `json:"leaderboard,omitempty"`
}

func viewOf(q domain.Quiz, viewerID string) quizView {
	reveal := viewerID != "" && viewerID == q.OwnerID
	questions := make([]questionView, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = questionView{Text: question.Text, Options: question.Options}
		if reveal {
			correct := question.CorrectOptionIndex
			questions[i].CorrectOptionIndex = &correct
		}
	}
	return quizView{
		ID:                   q.ID,
		Title:                q.Title,
		OwnerID:              q.OwnerID,
		Status:               q.Status,
		CurrentQuestionIndex: q.CurrentQuestionIndex,
		Questions:            questions,
		Players:              q.Players,
		UsageCount:           q.UsageCount,
		CreatedAt:            q.CreatedAt,
		UpdatedAt:            q.UpdatedAt,
		Version:              q.Version,
	}
}

func caller(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(OwnerHeader))
}

func quizCode(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("code")))
}

func (h *QuizHandler) Create(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	owner := caller(c)
	quiz, err := h.service.Create(c.Request.Context(), app.CreateQuizInput{
		Title:     req.Title,
		OwnerID:   owner,
		Questions: req.Questions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(quiz, owner))
}

func (h *QuizHandler) Get(c *gin.Context) {
	quiz, err := h.service.GetQuiz(c.Request.Context(), quizCode(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(quiz, caller(c)))
}

func (h *QuizHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), quizCode(c), caller(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	quizID := quizCode(c)
	var player domain.Player
	backoff := retry.WithMaxRetries(joinRetries, retry.NewConstant(joinRetryDelay))
	err := retry.Do(c.Request.Context(), backoff, func(ctx context.Context) error {
		p, err := h.service.Join(ctx, quizID, req.PlayerID, req.DisplayName)
		if errors.Is(err, domain.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		player = p
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, player)
}

func (h *QuizHandler) Start(c *gin.Context) {
	owner := caller(c)
	quiz, err := h.service.Start(c.Request.Context(), quizCode(c), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(quiz, owner))
}

func (h *QuizHandler) Advance(c *gin.Context) {
	var req advanceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	owner := caller(c)
	var (
		res app.AdvanceResult
		err error
	)
	if req.FromQuestionIndex != nil {
		res, err = h.service.AdvanceFrom(c.Request.Context(), quizCode(c), owner, *req.FromQuestionIndex)
	} else {
		res, err = h.service.Advance(c.Request.Context(), quizCode(c), owner)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, advanceResponse{
		Quiz:        viewOf(res.Quiz, owner),
		Finished:    res.Finished(),
		Leaderboard: res.Leaderboard,
	})
}

func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	err := h.service.SubmitAnswer(c.Request.Context(), app.SubmitAnswerInput{
		QuizID:              quizCode(c),
		PlayerID:            req.PlayerID,
		QuestionIndex:       req.QuestionIndex,
		SelectedOptionIndex: req.SelectedOptionIndex,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) RecordResults(c *gin.Context) {
	board, err := h.service.RecordResults(c.Request.Context(), quizCode(c), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}
