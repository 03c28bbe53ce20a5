package mongo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

// ledgerDoc holds every answer of one quiz, so the closed-question check and the
// answer write are a single-document update.
type ledgerDoc struct {
	ID            string               `bson:"_id"`
	ClosedThrough int                  `bson:"closed_through"`
	Answers       map[string]answerDoc `bson:"answers"`
}

type answerDoc struct {
	PlayerID            string    `bson:"player_id"`
	QuestionIndex       int       `bson:"question_index"`
	SelectedOptionIndex int       `bson:"selected_option"`
	SubmittedAt         time.Time `bson:"submitted_at"`
}

// answerKey hex-encodes the player ID so it is always a safe field name.
func answerKey(playerID string, questionIndex int) string {
	return fmt.Sprintf("%d_%s", questionIndex, hex.EncodeToString([]byte(playerID)))
}

func (d answerDoc) toDomain(quizID string) domain.Answer {
	return domain.Answer{
		QuizID:              quizID,
		PlayerID:            d.PlayerID,
		QuestionIndex:       d.QuestionIndex,
		SelectedOptionIndex: d.SelectedOptionIndex,
		SubmittedAt:         d.SubmittedAt.UTC(),
	}
}

// PutAnswer matches the ledger only while the question is open. A missed match
// upserts, which collides on _id once the ledger exists; one retry separates a
// racing first write from a closed question.
func (s *Store) PutAnswer(ctx context.Context, answer domain.Answer) error {
	filter := bson.M{"_id": answer.QuizID, "closed_through": bson.M{"$lt": answer.QuestionIndex}}
	update := bson.M{
		"$set": bson.M{"answers." + answerKey(answer.PlayerID, answer.QuestionIndex): answerDoc{
			PlayerID:            answer.PlayerID,
			QuestionIndex:       answer.QuestionIndex,
			SelectedOptionIndex: answer.SelectedOptionIndex,
			SubmittedAt:         answer.SubmittedAt,
		}},
		"$setOnInsert": bson.M{"closed_through": -1},
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		_, err = s.answers.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if !mongo.IsDuplicateKeyError(err) {
			return storeerr.Wrap("mongo", "put answer", err)
		}
	}
	return domain.ErrQuestionClosed
}

func (s *Store) CloseQuestions(ctx context.Context, quizID string, throughIndex int, _ bool) error {
	_, err := s.answers.UpdateOne(ctx,
		bson.M{"_id": quizID},
		bson.M{"$max": bson.M{"closed_through": throughIndex}},
		options.Update().SetUpsert(true))
	return storeerr.Wrap("mongo", "close questions", err)
}

func (s *Store) GetAnswer(ctx context.Context, quizID, playerID string, questionIndex int) (domain.Answer, bool, error) {
	key := answerKey(playerID, questionIndex)
	var doc ledgerDoc
	err := s.answers.FindOne(ctx, bson.M{"_id": quizID}, options.FindOne().SetProjection(bson.M{"answers." + key: 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, storeerr.Wrap("mongo", "get answer", err)
	}
	a, ok := doc.Answers[key]
	if !ok {
		return domain.Answer{}, false, nil
	}
	return a.toDomain(quizID), true, nil
}

func (s *Store) ListAnswers(ctx context.Context, quizID string) (domain.AnswerSheet, error) {
	var doc ledgerDoc
	err := s.answers.FindOne(ctx, bson.M{"_id": quizID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.NewAnswerSheet(quizID, nil), nil
	}
	if err != nil {
		return domain.AnswerSheet{}, storeerr.Wrap("mongo", "list answers", err)
	}
	answers := make([]domain.Answer, 0, len(doc.Answers))
	for _, a := range doc.Answers {
		answers = append(answers, a.toDomain(quizID))
	}
	return domain.NewAnswerSheet(quizID, answers), nil
}

func (s *Store) DeleteAnswers(ctx context.Context, quizID string) error {
	_, err := s.answers.DeleteOne(ctx, bson.M{"_id": quizID})
	return storeerr.Wrap("mongo", "delete answers", err)
}

type resultDoc struct {
	ID             string     `bson:"_id"`
	QuizID         string     `bson:"quiz_id"`
	QuizTitle      string     `bson:"quiz_title"`
	PlayerID       string     `bson:"player_id"`
	PlayerName     string     `bson:"player_name"`
	Score          int        `bson:"score"`
	TotalQuestions int        `bson:"total_questions"`
	CompletedAt    time.Time  `bson:"completed_at"`
	Answers        []gradeDoc `bson:"answers"`
}

type gradeDoc struct {
	QuestionIndex       int  `bson:"question_index"`
	SelectedOptionIndex int  `bson:"selected_option"`
	IsCorrect           bool `bson:"is_correct"`
}

func (d resultDoc) toDomain() domain.ResultRecord {
	answers := make([]domain.ResultAnswer, 0, len(d.Answers))
	for _, g := range d.Answers {
		answers = append(answers, domain.ResultAnswer{
			QuestionIndex:       g.QuestionIndex,
			SelectedOptionIndex: g.SelectedOptionIndex,
			IsCorrect:           g.IsCorrect,
		})
	}
	return domain.ResultRecord{
		QuizID:         d.QuizID,
		QuizTitle:      d.QuizTitle,
		PlayerID:       d.PlayerID,
		PlayerName:     d.PlayerName,
		Score:          d.Score,
		TotalQuestions: d.TotalQuestions,
		CompletedAt:    d.CompletedAt.UTC(),
		Answers:        answers,
	}
}

func (s *Store) PutResults(ctx context.Context, results []domain.ResultRecord) error {
	if len(results) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(results))
	for _, r := range results {
		id := r.QuizID + "/" + r.PlayerID
		grades := make([]gradeDoc, 0, len(r.Answers))
		for _, a := range r.Answers {
			grades = append(grades, gradeDoc{
				QuestionIndex:       a.QuestionIndex,
				SelectedOptionIndex: a.SelectedOptionIndex,
				IsCorrect:           a.IsCorrect,
			})
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(resultDoc{
				ID:             id,
				QuizID:         r.QuizID,
				QuizTitle:      r.QuizTitle,
				PlayerID:       r.PlayerID,
				PlayerName:     r.PlayerName,
				Score:          r.Score,
				TotalQuestions: r.TotalQuestions,
				CompletedAt:    r.CompletedAt,
				Answers:        grades,
			}).
			SetUpsert(true))
	}
	_, err := s.results.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return storeerr.Wrap("mongo", "put results", err)
}

func (s *Store) ListResultsByQuiz(ctx context.Context, quizID string, limit int) ([]domain.ResultRecord, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "score", Value: -1},
		{Key: "completed_at", Value: 1},
		{Key: "player_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findResults(ctx, bson.M{"quiz_id": quizID}, opts)
}

func (s *Store) ListResultsByPlayer(ctx context.Context, playerID string) ([]domain.ResultRecord, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "completed_at", Value: -1},
		{Key: "quiz_id", Value: 1},
	})
	return s.findResults(ctx, bson.M{"player_id": playerID}, opts)
}

func (s *Store) findResults(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.ResultRecord, error) {
	cur, err := s.results.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeerr.Wrap("mongo", "find results", err)
	}
	defer cur.Close(ctx)

	var out []domain.ResultRecord
	for cur.Next(ctx) {
		var doc resultDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storeerr.Wrap("mongo", "decode result", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, storeerr.Wrap("mongo", "find results", cur.Err())
}
