package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

// AnswerLedger keeps one hash per quiz:
//
//	HSET quiz:{id}:answers {playerID}/{questionIndex} {answer json}
//	HSET quiz:{id}:answers #closed {highest closed question index}
//
// The hash expires ttl (plus jitter) after the last write until a final close
// makes it persistent.
type AnswerLedger struct {
	client *redis.Client
	ttl    time.Duration
}

const closedField = "#closed"

// putAnswerScript writes ARGV[2]=ARGV[3] unless question ARGV[1] is closed.
const putAnswerScript = `
local closed = tonumber(redis.call("HGET", KEYS[1], "#closed") or "-1")
if tonumber(ARGV[1]) <= closed then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
end
return 1
`

// closeQuestionsScript raises the closed index to ARGV[1]. ARGV[2]=="1" drops the expiry.
const closeQuestionsScript = `
local closed = tonumber(redis.call("HGET", KEYS[1], "#closed") or "-1")
if tonumber(ARGV[1]) > closed then
	redis.call("HSET", KEYS[1], "#closed", ARGV[1])
end
if ARGV[2] == "1" then
	redis.call("PERSIST", KEYS[1])
elseif tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`

func NewAnswerLedger(client *redis.Client, ttl time.Duration) *AnswerLedger {
	return &AnswerLedger{client: client, ttl: ttl}
}

func (l *AnswerLedger) PutAnswer(ctx context.Context, answer domain.Answer) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	written, err := l.client.Eval(ctx, putAnswerScript, []string{answersKey(answer.QuizID)},
		answer.QuestionIndex,
		answerField(answer.PlayerID, answer.QuestionIndex),
		payload,
		l.ttlWithJitter().Milliseconds(),
	).Int()
	if err != nil {
		return storeerr.Wrap("redis", "put answer", err)
	}
	if written == 0 {
		return domain.ErrQuestionClosed
	}
	return nil
}

func (l *AnswerLedger) CloseQuestions(ctx context.Context, quizID string, throughIndex int, final bool) error {
	finalArg := "0"
	if final {
		finalArg = "1"
	}
	err := l.client.Eval(ctx, closeQuestionsScript, []string{answersKey(quizID)},
		throughIndex, finalArg, l.ttlWithJitter().Milliseconds(),
	).Err()
	return storeerr.Wrap("redis", "close questions", err)
}

func (l *AnswerLedger) GetAnswer(ctx context.Context, quizID, playerID string, questionIndex int) (domain.Answer, bool, error) {
	raw, err := l.client.HGet(ctx, answersKey(quizID), answerField(playerID, questionIndex)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, storeerr.Wrap("redis", "get answer", err)
	}
	var answer domain.Answer
	if err := json.Unmarshal(raw, &answer); err != nil {
		return domain.Answer{}, false, fmt.Errorf("decode answer: %w", err)
	}
	return answer, true, nil
}

func (l *AnswerLedger) ListAnswers(ctx context.Context, quizID string) (domain.AnswerSheet, error) {
	fields, err := l.client.HGetAll(ctx, answersKey(quizID)).Result()
	if err != nil {
		return domain.AnswerSheet{}, storeerr.Wrap("redis", "list answers", err)
	}
	rows := make([]domain.Answer, 0, len(fields))
	for field, raw := range fields {
		if field == closedField {
			continue
		}
		var answer domain.Answer
		if err := json.Unmarshal([]byte(raw), &answer); err != nil {
			return domain.AnswerSheet{}, fmt.Errorf("decode answer %s: %w", field, err)
		}
		rows = append(rows, answer)
	}
	return domain.NewAnswerSheet(quizID, rows), nil
}

func (l *AnswerLedger) DeleteAnswers(ctx context.Context, quizID string) error {
	return storeerr.Wrap("redis", "delete answers", l.client.Del(ctx, answersKey(quizID)).Err())
}

func (l *AnswerLedger) ttlWithJitter() time.Duration {
	if l.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(l.ttl) / 10
	return l.ttl + time.Duration(rand.Int64N(jitterMax+1))
}

func answersKey(quizID string) string {
	return "quiz:" + quizID + ":answers"
}

func answerField(playerID string, questionIndex int) string {
	return playerID + "/" + strconv.Itoa(questionIndex)
}
