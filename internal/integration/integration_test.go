package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/mongo"
	"quiz-session-service/internal/infra/postgres"
	"quiz-session-service/internal/infra/postgres/migrations"
	infraredis "quiz-session-service/internal/infra/redis"
)

func TestSessionOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}, "5432/tcp", "postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable")
	defer cleanup()

	migrateSchema(t, ctx, pgURL)
	store, err := postgres.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer store.Close()

	runSession(t, app.Store{Quizzes: store, Answers: store, Results: store})
	runConcurrentFinish(t, app.Store{Quizzes: store, Answers: store, Results: store})
}

func TestSessionOnRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp", "redis://%s:%s")
	defer cleanup()

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	defer client.Close()

	store := app.Store{
		Quizzes: infraredis.NewQuizRepository(client),
		Answers: infraredis.NewAnswerLedger(client, time.Hour),
		Results: infraredis.NewResultRepository(client),
	}
	runSession(t, store)
	runConcurrentFinish(t, store)
}

func TestSessionOnMongo(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	mongoURI, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}, "27017/tcp", "mongodb://%s:%s")
	defer cleanup()

	store, err := mongo.Connect(ctx, mongoURI, "quiz_test")
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	defer store.Close(context.Background())
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	runSession(t, app.Store{Quizzes: store, Answers: store, Results: store})
	runConcurrentFinish(t, app.Store{Quizzes: store, Answers: store, Results: store})
}

// runSession plays a two-question quiz and checks scores, stored results and history.
func runSession(t *testing.T, store app.Store) {
	t.Helper()
	ctx := context.Background()
	service := app.NewQuizService(store)
	library := app.NewLibraryService(store, app.DefaultCallTimeout)

	quiz, err := service.Create(ctx, sampleQuiz("host-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range []struct{ id, name string }{{"u1", "Alice"}, {"u2", "Bob"}} {
		if _, err := service.Join(ctx, quiz.ID, p.id, p.name); err != nil {
			t.Fatalf("join %s: %v", p.id, err)
		}
	}
	if _, err := service.Start(ctx, quiz.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	submit := func(player string, question, option int) {
		t.Helper()
		err := service.SubmitAnswer(ctx, app.SubmitAnswerInput{
			QuizID: quiz.ID, PlayerID: player, QuestionIndex: question, SelectedOptionIndex: option,
		})
		if err != nil {
			t.Fatalf("submit %s q%d: %v", player, question, err)
		}
	}
	submit("u1", 0, 0)
	submit("u2", 0, 1)
	submit("u2", 0, 0) // resubmission replaces the wrong answer

	if _, err := service.AdvanceFrom(ctx, quiz.ID, "host-1", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := store.Answers.PutAnswer(ctx, domain.Answer{QuizID: quiz.ID, PlayerID: "u1", QuestionIndex: 0, SubmittedAt: time.Now()}); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected closed question 0, got %v", err)
	}
	submit("u2", 1, 1)
	submit("u1", 1, 0)

	res, err := service.Advance(ctx, quiz.ID, "host-1")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !res.Finished() || res.Quiz.Status != domain.StatusFinished {
		t.Fatalf("expected finished quiz, got %+v", res.Quiz.Status)
	}
	entries := res.Leaderboard.Entries
	if len(entries) != 3 || entries[0].PlayerID != "u2" || entries[0].Score != 2 || entries[1].PlayerID != "u1" {
		t.Fatalf("unexpected leaderboard: %+v", entries)
	}

	stored, err := library.QuizLeaderboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("stored leaderboard: %v", err)
	}
	if len(stored) != 3 || stored[0].PlayerID != "u2" || stored[0].TotalQuestions != 2 {
		t.Fatalf("unexpected stored results: %+v", stored)
	}

	// Repair is idempotent: no duplicate rows.
	if _, err := service.RecordResults(ctx, quiz.ID, "host-1"); err != nil {
		t.Fatalf("record results: %v", err)
	}
	history, err := library.PlayerResults(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].QuizID != quiz.ID || history[0].Score != 1 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if graded := history[0].Answers; len(graded) != 2 || !graded[0].IsCorrect || graded[1].IsCorrect {
		t.Fatalf("unexpected graded answers: %+v", graded)
	}

	stats, err := library.Stats(ctx, "host-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuizzes < 1 || stats.MostUsed == nil {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := service.Delete(ctx, quiz.ID, "host-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.GetQuiz(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

// runConcurrentFinish races several advances from the last question; exactly one may win.
func runConcurrentFinish(t *testing.T, store app.Store) {
	t.Helper()
	ctx := context.Background()
	service := app.NewQuizService(store)

	in := sampleQuiz("host-2")
	in.Questions = in.Questions[:1]
	quiz, err := service.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Start(ctx, quiz.ID, "host-2"); err != nil {
		t.Fatalf("start: %v", err)
	}

	const racers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		refused int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Advance(ctx, quiz.ID, "host-2")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrInvalidState):
				refused++
			default:
				t.Errorf("unexpected advance error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || refused != racers-1 {
		t.Fatalf("expected one winner, got wins=%d refused=%d", wins, refused)
	}
}

func sampleQuiz(owner string) app.CreateQuizInput {
	return app.CreateQuizInput{
		Title:   "Integration Quiz",
		OwnerID: owner,
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"4", "5"}, CorrectOptionIndex: 0},
			{Text: "What is 3 * 3?", Options: []string{"6", "9"}, CorrectOptionIndex: 1},
		},
	}
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest, port, urlFormat string) (string, func()) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf(urlFormat, host, mapped.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration tests skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
