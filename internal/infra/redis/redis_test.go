package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestQuizRepositoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	repo := NewQuizRepository(client)
	quiz := domain.DemoQuiz("owner-1")

	if _, err := repo.GetQuiz(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.PutQuiz(ctx, quiz, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:DEMO") {
		t.Fatalf("expected quiz key to be set")
	}
	if ok, _ := mr.SIsMember("quiz:owner:owner-1", "DEMO"); !ok {
		t.Fatalf("expected owner index entry")
	}
	if err := repo.PutQuiz(ctx, quiz, 0); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	stored, err := repo.GetQuiz(ctx, quiz.ID)
	if err != nil || stored.Version != 1 {
		t.Fatalf("expected version 1, got %+v err=%v", stored, err)
	}
	stored.Status = domain.StatusActive
	if err := repo.PutQuiz(ctx, stored, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.PutQuiz(ctx, stored, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected stale write conflict, got %v", err)
	}
	if err := repo.PutQuiz(ctx, domain.DemoQuiz("x"), 0); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict for taken code, got %v", err)
	}

	latest, _ := repo.GetQuiz(ctx, quiz.ID)
	if latest.Version != 2 || latest.Status != domain.StatusActive {
		t.Fatalf("unexpected latest quiz %+v", latest)
	}
}

func TestQuizRepositoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	repo := NewQuizRepository(client)
	other := domain.DemoQuiz("owner-1")
	other.ID = "OTHER1"
	_ = repo.PutQuiz(ctx, domain.DemoQuiz("owner-1"), 0)
	_ = repo.PutQuiz(ctx, other, 0)

	quizzes, err := repo.ListQuizzesByOwner(ctx, "owner-1")
	if err != nil || len(quizzes) != 2 {
		t.Fatalf("expected 2 quizzes, got %d err=%v", len(quizzes), err)
	}
	if err := repo.DeleteQuiz(ctx, "DEMO", "owner-2"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	if err := repo.DeleteQuiz(ctx, "DEMO", "owner-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	quizzes, _ = repo.ListQuizzesByOwner(ctx, "owner-1")
	if len(quizzes) != 1 || quizzes[0].ID != "OTHER1" {
		t.Fatalf("expected only OTHER1 left, got %+v", quizzes)
	}
}

func TestAnswerLedgerStoresWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	ledger := NewAnswerLedger(client, time.Hour)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = ledger.PutAnswer(ctx, domain.Answer{QuizID: "Q", PlayerID: "p1", QuestionIndex: 0, SelectedOptionIndex: 1, SubmittedAt: at})
	_ = ledger.PutAnswer(ctx, domain.Answer{QuizID: "Q", PlayerID: "p1", QuestionIndex: 0, SelectedOptionIndex: 2, SubmittedAt: at})
	_ = ledger.PutAnswer(ctx, domain.Answer{QuizID: "Q", PlayerID: "p2", QuestionIndex: 0, SelectedOptionIndex: 0, SubmittedAt: at})

	ttl := mr.TTL("quiz:Q:answers")
	if ttl < time.Hour || ttl > time.Hour+6*time.Minute {
		t.Fatalf("expected ttl within jitter window, got %v", ttl)
	}
	answer, ok, err := ledger.GetAnswer(ctx, "Q", "p1", 0)
	if err != nil || !ok || answer.SelectedOptionIndex != 2 {
		t.Fatalf("expected last write 2, got %+v ok=%v err=%v", answer, ok, err)
	}
	if _, ok, err := ledger.GetAnswer(ctx, "Q", "p1", 1); ok || err != nil {
		t.Fatalf("expected missing answer, ok=%v err=%v", ok, err)
	}
	sheet, err := ledger.ListAnswers(ctx, "Q")
	if err != nil || sheet.Len() != 2 {
		t.Fatalf("expected 2 answers, got %d err=%v", sheet.Len(), err)
	}
	_ = ledger.DeleteAnswers(ctx, "Q")
	if mr.Exists("quiz:Q:answers") {
		t.Fatalf("expected ledger removed")
	}
}

func TestAnswerLedgerFinalCloseKeepsAnswers(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	ledger := NewAnswerLedger(client, time.Hour)

	if err := ledger.PutAnswer(ctx, domain.Answer{QuizID: "Q", PlayerID: "p1", QuestionIndex: 1, SelectedOptionIndex: 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ledger.CloseQuestions(ctx, "Q", 0, false); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ledger.PutAnswer(ctx, domain.Answer{QuizID: "Q", PlayerID: "p2", QuestionIndex: 0}); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected closed question 0, got %v", err)
	}
	if mr.TTL("quiz:Q:answers") <= 0 {
		t.Fatalf("expected ledger to keep expiring before the final close")
	}

	if err := ledger.CloseQuestions(ctx, "Q", 1, true); err != nil {
		t.Fatalf("final close: %v", err)
	}
	if err := ledger.PutAnswer(ctx, domain.Answer{QuizID: "Q", PlayerID: "p1", QuestionIndex: 1}); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected closed question 1, got %v", err)
	}
	mr.FastForward(2 * time.Hour)

	sheet, err := ledger.ListAnswers(ctx, "Q")
	if err != nil || sheet.Len() != 1 {
		t.Fatalf("expected the frozen answer to survive, got %d err=%v", sheet.Len(), err)
	}
	if a, ok := sheet.Get("p1", 1); !ok || a.SelectedOptionIndex != 2 {
		t.Fatalf("unexpected frozen answer %+v ok=%v", a, ok)
	}
}

func TestRecordResultsAfterLedgerTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	store := app.Store{
		Quizzes: NewQuizRepository(client),
		Answers: NewAnswerLedger(client, time.Hour),
		Results: NewResultRepository(client),
	}
	service := app.NewQuizService(store)

	quiz, err := service.Create(ctx, app.CreateQuizInput{
		Title:     "One",
		OwnerID:   "owner",
		Questions: []domain.Question{{Text: "2 + 2?", Options: []string{"3", "4"}, CorrectOptionIndex: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Join(ctx, quiz.ID, "p1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Start(ctx, quiz.ID, "owner"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.SubmitAnswer(ctx, app.SubmitAnswerInput{QuizID: quiz.ID, PlayerID: "p1", SelectedOptionIndex: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.Advance(ctx, quiz.ID, "owner"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	board, err := service.RecordResults(ctx, quiz.ID, "owner")
	if err != nil {
		t.Fatalf("record results: %v", err)
	}
	if board.Entries[0].PlayerID != "p1" || board.Entries[0].Score != 1 {
		t.Fatalf("expected p1 to keep score 1, got %+v", board.Entries)
	}
	history, err := store.Results.ListResultsByPlayer(ctx, "p1")
	if err != nil || len(history) != 1 || history[0].Score != 1 {
		t.Fatalf("expected stored score 1, got %+v err=%v", history, err)
	}
}

func TestResultRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	repo := NewResultRepository(client)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := repo.PutResults(ctx, []domain.ResultRecord{
		{QuizID: "Q1", PlayerID: "p1", Score: 2, CompletedAt: at.Add(2 * time.Second)},
		{QuizID: "Q1", PlayerID: "p2", Score: 2, CompletedAt: at.Add(time.Second)},
		{QuizID: "Q1", PlayerID: "p3", Score: 3, CompletedAt: at.Add(5 * time.Second)},
		{QuizID: "Q2", PlayerID: "p1", Score: 1, CompletedAt: at.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("put results: %v", err)
	}
	// Rewriting is an upsert.
	_ = repo.PutResults(ctx, []domain.ResultRecord{{QuizID: "Q1", PlayerID: "p1", Score: 2, CompletedAt: at.Add(2 * time.Second)}})

	board, err := repo.ListResultsByQuiz(ctx, "Q1", 2)
	if err != nil {
		t.Fatalf("list by quiz: %v", err)
	}
	if len(board) != 2 || board[0].PlayerID != "p3" || board[1].PlayerID != "p2" {
		t.Fatalf("unexpected board %+v", board)
	}
	history, err := repo.ListResultsByPlayer(ctx, "p1")
	if err != nil {
		t.Fatalf("list by player: %v", err)
	}
	if len(history) != 2 || history[0].QuizID != "Q2" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestNotifierRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	notifier := NewNotifier(client, zerolog.Nop())

	ch, cancel, err := notifier.Subscribe(ctx, "Q")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	notifier.Publish(ctx, domain.Snapshot{QuizID: "Q", Event: domain.EventStarted, Version: 3})

	select {
	case snap := <-ch:
		if snap.Event != domain.EventStarted || snap.Version != 3 {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected snapshot over pub/sub")
	}

	cancel()
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected channel to close after cancel")
	}
}
