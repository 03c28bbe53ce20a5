package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2024112203_fence_answers_and_grade_results.sql
var fenceAnswersAndGradeResultsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, fenceAnswersAndGradeResultsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `ALTER TABLE quiz_results DROP COLUMN IF EXISTS answers; DROP TABLE IF EXISTS answer_fences`)
			return err
		},
	)
}
