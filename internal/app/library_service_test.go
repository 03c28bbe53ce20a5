package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func seedLibrary(t *testing.T) app.Store {
	t.Helper()
	ctx := context.Background()
	store := app.Store{Quizzes: memory.NewQuizRepository(), Answers: memory.NewAnswerLedger(), Results: memory.NewResultRepository()}
	quizzes := []domain.Quiz{
		{ID: "AAAAAA", Title: "World Capitals", OwnerID: "owner", Questions: threeQuestions(), UsageCount: 3, UpdatedAt: epoch, LastUsedAt: epoch},
		{ID: "BBBBBB", Title: "Planets", OwnerID: "owner", Questions: threeQuestions()[:1], UsageCount: 7, UpdatedAt: epoch.Add(time.Hour), LastUsedAt: epoch.Add(2 * time.Hour)},
		{ID: "CCCCCC", Title: "Capital Letters", OwnerID: "owner", Questions: threeQuestions()[:2], UpdatedAt: epoch.Add(2 * time.Hour)},
		{ID: "DDDDDD", Title: "Someone else", OwnerID: "other", Questions: threeQuestions()},
	}
	for _, q := range quizzes {
		if err := store.Quizzes.PutQuiz(ctx, q, 0); err != nil {
			t.Fatalf("seed %s: %v", q.ID, err)
		}
	}
	return store
}

func TestLibraryListAndSearch(t *testing.T) {
	ctx := context.Background()
	lib := app.NewLibraryService(seedLibrary(t), time.Second)

	all, err := lib.ListQuizzes(ctx, "owner")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "CCCCCC" || all[2].ID != "AAAAAA" {
		t.Fatalf("expected newest-updated first, got %+v", all)
	}

	found, err := lib.Search(ctx, "owner", "CAPITAL")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %+v", found)
	}

	if _, err := lib.ListQuizzes(ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank owner, got %v", err)
	}
}

func TestLibraryStats(t *testing.T) {
	lib := app.NewLibraryService(seedLibrary(t), time.Second)

	stats, err := lib.Stats(context.Background(), "owner")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzes != 3 || stats.TotalQuestions != 6 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.MostUsed == nil || stats.MostUsed.ID != "BBBBBB" {
		t.Fatalf("expected Planets most used, got %+v", stats.MostUsed)
	}
	if len(stats.RecentlyUsed) != 2 || stats.RecentlyUsed[0].ID != "BBBBBB" {
		t.Fatalf("expected two recently used quizzes, latest first, got %+v", stats.RecentlyUsed)
	}
}

func TestLibraryResults(t *testing.T) {
	ctx := context.Background()
	store := seedLibrary(t)
	lib := app.NewLibraryService(store, time.Second)
	_ = store.Results.PutResults(ctx, []domain.ResultRecord{
		{QuizID: "AAAAAA", PlayerID: "p1", Score: 1, CompletedAt: epoch},
		{QuizID: "AAAAAA", PlayerID: "p2", Score: 3, CompletedAt: epoch.Add(time.Second)},
		{QuizID: "BBBBBB", PlayerID: "p1", Score: 1, CompletedAt: epoch.Add(time.Hour)},
	})

	board, err := lib.QuizLeaderboard(ctx, "AAAAAA")
	if err != nil || len(board) != 2 || board[0].PlayerID != "p2" {
		t.Fatalf("unexpected leaderboard %+v err=%v", board, err)
	}
	history, err := lib.PlayerResults(ctx, "p1")
	if err != nil || len(history) != 2 || history[0].QuizID != "BBBBBB" {
		t.Fatalf("unexpected history %+v err=%v", history, err)
	}
}
