package storeerr

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"quiz-session-service/internal/domain"
)

func TestWrapClassifies(t *testing.T) {
	if Wrap("redis", "get", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
	if err := Wrap("redis", "get", domain.ErrQuizNotFound); err != domain.ErrQuizNotFound {
		t.Fatalf("expected domain error unchanged, got %v", err)
	}
	if err := Wrap("postgres", "put answer", domain.ErrQuestionClosed); err != domain.ErrQuestionClosed {
		t.Fatalf("expected closed question unchanged, got %v", err)
	}
	for _, cause := range []error{context.DeadlineExceeded, syscall.ECONNREFUSED, fmt.Errorf("dial: %w", syscall.ECONNRESET)} {
		if err := Wrap("postgres", "query", cause); !errors.Is(err, domain.ErrTransient) {
			t.Fatalf("expected %v to be transient, got %v", cause, err)
		}
	}
	if err := Wrap("mongo", "decode", errors.New("bad document")); errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected decode failure to stay permanent, got %v", err)
	}
}
