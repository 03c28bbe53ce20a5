package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/domain"
)

func TestOutcomeLabels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.ErrQuizNotFound, "not_found"},
		{domain.ErrParticipantNotFound, "not_found"},
		{domain.ErrNotOwner, "forbidden"},
		{domain.InvalidState("start", domain.StatusActive), "invalid_state"},
		{fmt.Errorf("put: %w", domain.ErrVersionConflict), "conflict"},
		{domain.Transient(errors.New("reset")), "transient"},
		{&domain.ValidationError{Field: "title", Reason: "is required"}, "validation"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Outcome(tc.err), "%v", tc.err)
	}
}

func TestObserveOutcomeCounts(t *testing.T) {
	m := New()
	m.ObserveOutcome("advance", nil)
	m.ObserveOutcome("advance", nil)
	m.ObserveOutcome("advance", domain.ErrVersionConflict)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("advance", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("advance", "conflict")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/quizzes/:code", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, code := range []string{"AAAAAA", "BBBBBB"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quizzes/"+code, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/quizzes/:code", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "quiz_http_requests_total"))
}
