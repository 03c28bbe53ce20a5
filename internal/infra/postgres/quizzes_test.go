package postgres

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestSharedLoadOutlivesCanceledCaller(t *testing.T) {
	var s Store
	started := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32
	load := func(ctx context.Context, id string) (domain.Quiz, error) {
		if loads.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return domain.Quiz{ID: id, Version: 3}, nil
		case <-ctx.Done():
			return domain.Quiz{}, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.shared(firstCtx, "ABC123", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		quiz domain.Quiz
		err  error
	}
	second := make(chan result, 1)
	go func() {
		quiz, err := s.shared(context.Background(), "ABC123", load)
		second <- result{quiz, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; err != context.Canceled {
		t.Fatalf("expected first caller canceled, got %v", err)
	}
	close(release)

	got := <-second
	if got.err != nil {
		t.Fatalf("expected joined caller to get the quiz, got %v", got.err)
	}
	if got.quiz.ID != "ABC123" || got.quiz.Version != 3 {
		t.Fatalf("unexpected quiz %+v", got.quiz)
	}
}
