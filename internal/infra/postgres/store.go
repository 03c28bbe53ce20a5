// Package postgres implements the quiz gateway on Postgres through pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/infra/storeerr"
)

// Store implements app.QuizRepository, app.AnswerLedger and app.ResultRepository.
// Schema lives in the migrations package.
type Store struct {
	pool *pgxpool.Pool
	sf   singleflight.Group
}

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, storeerr.Wrap("postgres", "connect", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}
