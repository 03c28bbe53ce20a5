package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
	transport "quiz-session-service/internal/transport/http"
)

const appName = "quiz-session-service"

// demoOwnerID owns the seeded demo quiz.
const demoOwnerID = "demo-host"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(appName, cfg.Log.Env, cfg.Log.Level)
	ctx = logging.IntoContext(ctx, logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg.Postgres.URL, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	callTimeout := config.Duration(cfg.Store.CallTimeout, app.DefaultCallTimeout)
	m := metrics.New()
	opts := []app.Option{
		app.WithNotifier(b.notifier),
		app.WithCallTimeout(callTimeout),
		app.WithObserver(m.ObserveOutcome),
	}
	for _, sink := range b.sinks {
		opts = append(opts, app.WithEventSink(sink))
	}
	service := app.NewQuizService(b.store, opts...)
	library := app.NewLibraryService(b.store, callTimeout)

	if cfg.Quiz.SeedDemo {
		if err := seedDemo(ctx, b.store.Quizzes); err != nil {
			return err
		}
		logger.Info().Str("quiz_id", domain.DemoQuizID).Msg("demo quiz available")
	}

	router := transport.NewRouter(transport.RouterDeps{
		Service:     service,
		Library:     library,
		Metrics:     m,
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", finalPort).
			Str("store", cfg.Store.Backend).
			Str("notifier", cfg.Notifier.Backend).
			Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemo stores the demo quiz unless it already exists.
func seedDemo(ctx context.Context, quizzes app.QuizRepository) error {
	now := time.Now().UTC()
	demo := domain.DemoQuiz(demoOwnerID)
	demo.CreatedAt, demo.UpdatedAt = now, now
	for i := range demo.Players {
		demo.Players[i].JoinedAt = now
	}
	err := quizzes.PutQuiz(ctx, demo, 0)
	if errors.Is(err, domain.ErrVersionConflict) {
		return nil
	}
	return err
}
