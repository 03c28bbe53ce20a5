// Package mongo implements the quiz gateway on MongoDB.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/storeerr"
)

// Store implements app.QuizRepository, app.AnswerLedger and app.ResultRepository
// over the quizzes, answers and results collections.
type Store struct {
	client  *mongo.Client
	quizzes *mongo.Collection
	answers *mongo.Collection
	results *mongo.Collection
}

// Connect dials the server and pings it before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storeerr.Wrap("mongo", "connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storeerr.Wrap("mongo", "ping", err)
	}
	return New(client, client.Database(database)), nil
}

func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:  client,
		quizzes: db.Collection("quizzes"),
		answers: db.Collection("answers"),
		results: db.Collection("results"),
	}
}

// EnsureIndexes creates the lookup indexes. Safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.quizzes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}},
	}); err != nil {
		return storeerr.Wrap("mongo", "index quizzes", err)
	}
	if _, err := s.results.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "quiz_id", Value: 1}, {Key: "score", Value: -1}, {Key: "completed_at", Value: 1}}},
		{Keys: bson.D{{Key: "player_id", Value: 1}, {Key: "completed_at", Value: -1}}},
	}); err != nil {
		return storeerr.Wrap("mongo", "index results", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type quizDoc struct {
	ID                   string          `bson:"_id"`
	Title                string          `bson:"title"`
	Questions            []questionDoc   `bson:"questions"`
	OwnerID              string          `bson:"owner_id"`
	Status               string          `bson:"status"`
	CurrentQuestionIndex int             `bson:"current_question_index"`
	Players              []domain.Player `bson:"players"`
	CreatedAt            time.Time       `bson:"created_at"`
	UpdatedAt            time.Time       `bson:"updated_at"`
	UsageCount           int             `bson:"usage_count"`
	LastUsedAt           time.Time       `bson:"last_used_at"`
	Version              int64           `bson:"version"`
}

type questionDoc struct {
	Text               string   `bson:"text"`
	Options            []string `bson:"options"`
	CorrectOptionIndex int      `bson:"correct_option_index"`
}

func toQuizDoc(q domain.Quiz) quizDoc {
	questions := make([]questionDoc, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = questionDoc{
			Text:               question.Text,
			Options:            question.Options,
			CorrectOptionIndex: question.CorrectOptionIndex,
		}
	}
	return quizDoc{
		ID:                   q.ID,
		Title:                q.Title,
		Questions:            questions,
		OwnerID:              q.OwnerID,
		Status:               string(q.Status),
		CurrentQuestionIndex: q.CurrentQuestionIndex,
		Players:              q.Players,
		CreatedAt:            q.CreatedAt,
		UpdatedAt:            q.UpdatedAt,
		UsageCount:           q.UsageCount,
		LastUsedAt:           q.LastUsedAt,
		Version:              q.Version,
	}
}

func (d quizDoc) toDomain() domain.Quiz {
	questions := make([]domain.Question, len(d.Questions))
	for i, question := range d.Questions {
		questions[i] = domain.Question{
			Text:               question.Text,
			Options:            question.Options,
			CorrectOptionIndex: question.CorrectOptionIndex,
		}
	}
	return domain.Quiz{
		ID:                   d.ID,
		Title:                d.Title,
		Questions:            questions,
		OwnerID:              d.OwnerID,
		Status:               domain.Status(d.Status),
		CurrentQuestionIndex: d.CurrentQuestionIndex,
		Players:              d.Players,
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
		UsageCount:           d.UsageCount,
		LastUsedAt:           d.LastUsedAt.UTC(),
		Version:              d.Version,
	}
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var doc quizDoc
	err := s.quizzes.FindOne(ctx, bson.M{"_id": quizID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, storeerr.Wrap("mongo", "get quiz", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) PutQuiz(ctx context.Context, quiz domain.Quiz, expectedVersion int64) error {
	stored := quiz.Clone()
	stored.Version = expectedVersion + 1
	doc := toQuizDoc(stored)

	if expectedVersion == 0 {
		_, err := s.quizzes.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrVersionConflict
		}
		return storeerr.Wrap("mongo", "insert quiz", err)
	}

	res, err := s.quizzes.ReplaceOne(ctx, bson.M{"_id": quiz.ID, "version": expectedVersion}, doc)
	if err != nil {
		return storeerr.Wrap("mongo", "replace quiz", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID, ownerID string) error {
	res, err := s.quizzes.DeleteOne(ctx, bson.M{"_id": quizID, "owner_id": ownerID})
	if err != nil {
		return storeerr.Wrap("mongo", "delete quiz", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) ListQuizzesByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	cur, err := s.quizzes.Find(ctx, bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, storeerr.Wrap("mongo", "list quizzes", err)
	}
	defer cur.Close(ctx)

	var quizzes []domain.Quiz
	for cur.Next(ctx) {
		var doc quizDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storeerr.Wrap("mongo", "decode quiz", err)
		}
		quizzes = append(quizzes, doc.toDomain())
	}
	return quizzes, storeerr.Wrap("mongo", "list quizzes", cur.Err())
}
