// Package ranking orders stored result records for adapters that cannot sort server-side.
package ranking

import (
	"sort"

	"quiz-session-service/internal/domain"
)

// TopResults sorts by score desc then completion asc and keeps at most limit rows.
// A non-positive limit keeps everything.
func TopResults(results []domain.ResultRecord, limit int) []domain.ResultRecord {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return a.PlayerID < b.PlayerID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// NewestFirst sorts by completion desc.
func NewestFirst(results []domain.ResultRecord) []domain.ResultRecord {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.After(b.CompletedAt)
		}
		return a.QuizID < b.QuizID
	})
	return results
}
