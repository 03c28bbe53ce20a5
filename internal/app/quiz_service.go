package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// DefaultCallTimeout bounds every gateway call.
const DefaultCallTimeout = 3 * time.Second

const maxCodeAttempts = 5

// ErrNotificationsDisabled is returned by Subscribe when no notifier is wired.
var ErrNotificationsDisabled = errors.New("snapshot notifications are not configured")

// QuizService is the quiz session state machine and answer ledger.
// Every transition is a single compare-and-swap write against the store; the
// service keeps no session state of its own and never retries.
type QuizService struct {
	store       Store
	notifier    Notifier
	sinks       []EventSink
	now         func() time.Time
	newCode     func() string
	newPlayerID func() string
	callTimeout time.Duration
	observe     func(op string, err error)
}

// Option configures a QuizService.
type Option func(*QuizService)

// WithNotifier fans committed snapshots out to subscribers.
func WithNotifier(n Notifier) Option {
	return func(s *QuizService) { s.notifier = n }
}

// WithEventSink adds a best-effort downstream publisher.
func WithEventSink(sink EventSink) Option {
	return func(s *QuizService) { s.sinks = append(s.sinks, sink) }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithCodeGenerator overrides join-code generation.
func WithCodeGenerator(gen func() string) Option {
	return func(s *QuizService) { s.newCode = gen }
}

// WithPlayerIDGenerator overrides generated player IDs.
func WithPlayerIDGenerator(gen func() string) Option {
	return func(s *QuizService) { s.newPlayerID = gen }
}

// WithCallTimeout sets the per-call gateway deadline. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(s *QuizService) { s.callTimeout = d }
}

// WithObserver receives the outcome of every public operation.
func WithObserver(fn func(op string, err error)) Option {
	return func(s *QuizService) { s.observe = fn }
}

func NewQuizService(store Store, opts ...Option) *QuizService {
	s := &QuizService{
		store:       store,
		now:         time.Now,
		newCode:     domain.NewCode,
		newPlayerID: uuid.NewString,
		callTimeout: DefaultCallTimeout,
		observe:     func(string, error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateQuizInput is the authored quiz submitted by a host.
type CreateQuizInput struct {
	Title     string
	OwnerID   string
	Questions []domain.Question
}

// SubmitAnswerInput is a player's selection for the open question.
type SubmitAnswerInput struct {
	QuizID              string
	PlayerID            string
	QuestionIndex       int
	SelectedOptionIndex int
}

// AdvanceResult carries the new quiz state and, once finished, the final leaderboard.
type AdvanceResult struct {
	Quiz        domain.Quiz
	Leaderboard *domain.Leaderboard
}

// Finished reports whether the advance closed the quiz.
func (r AdvanceResult) Finished() bool {
	return r.Leaderboard != nil
}

// Create validates and stores a new quiz in the lobby with the owner seeded as host.
func (s *QuizService) Create(ctx context.Context, in CreateQuizInput) (quiz domain.Quiz, err error) {
	defer func() { s.observe("create", err) }()

	title, err := domain.ValidateTitle(in.Title)
	if err != nil {
		return domain.Quiz{}, err
	}
	ownerID, err := domain.RequireID("ownerId", in.OwnerID)
	if err != nil {
		return domain.Quiz{}, err
	}
	questions, err := domain.ValidateQuestions(in.Questions)
	if err != nil {
		return domain.Quiz{}, err
	}

	now := s.now()
	quiz = domain.Quiz{
		Title:     title,
		Questions: questions,
		OwnerID:   ownerID,
		Status:    domain.StatusLobby,
		Players:   []domain.Player{{ID: ownerID, DisplayName: domain.HostDisplayName, JoinedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		quiz.ID = s.newCode()
		err = s.commit(ctx, &quiz, 0)
		if err == nil {
			s.publish(ctx, domain.SnapshotOf(quiz, domain.EventCreated, now))
			return quiz, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
		}
	}
	return domain.Quiz{}, fmt.Errorf("create quiz: no free join code after %d attempts: %w", maxCodeAttempts, err)
}

// GetQuiz loads a quiz by join code.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.getQuiz(ctx, quizID)
}

// Join registers a player while the quiz is in the lobby. An empty playerID is
// replaced with a generated one; joining again with a known ID returns the stored player.
func (s *QuizService) Join(ctx context.Context, quizID, playerID, displayName string) (player domain.Player, err error) {
	defer func() { s.observe("join", err) }()

	name, err := domain.ValidateDisplayName(displayName)
	if err != nil {
		return domain.Player{}, err
	}
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return domain.Player{}, err
	}
	if quiz.Status != domain.StatusLobby {
		return domain.Player{}, domain.InvalidState("join", quiz.Status)
	}
	if playerID == "" {
		playerID = s.newPlayerID()
	} else if existing, ok := quiz.Player(playerID); ok {
		return existing, nil
	}

	now := s.now()
	player = domain.Player{ID: playerID, DisplayName: name, JoinedAt: now}
	next := quiz.Clone()
	next.Players = append(next.Players, player)
	next.UpdatedAt = now
	if err := s.commit(ctx, &next, quiz.Version); err != nil {
		return domain.Player{}, fmt.Errorf("join quiz %s: %w", quizID, err)
	}
	s.publish(ctx, domain.SnapshotOf(next, domain.EventPlayerJoined, now))
	return player, nil
}

// Start opens the first question. Only the owner may start a quiz.
func (s *QuizService) Start(ctx context.Context, quizID, ownerID string) (started domain.Quiz, err error) {
	defer func() { s.observe("start", err) }()

	quiz, err := s.ownedQuiz(ctx, quizID, ownerID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.Status != domain.StatusLobby {
		return domain.Quiz{}, domain.InvalidState("start", quiz.Status)
	}

	now := s.now()
	next := quiz.Clone()
	next.Status = domain.StatusActive
	next.CurrentQuestionIndex = 0
	next.UsageCount++
	next.LastUsedAt = now
	next.UpdatedAt = now
	if err := s.commit(ctx, &next, quiz.Version); err != nil {
		return domain.Quiz{}, fmt.Errorf("start quiz %s: %w", quizID, err)
	}
	s.publish(ctx, domain.SnapshotOf(next, domain.EventStarted, now))
	return next, nil
}

// Advance moves to the next question, or finishes the quiz from the last one.
func (s *QuizService) Advance(ctx context.Context, quizID, ownerID string) (AdvanceResult, error) {
	return s.advance(ctx, quizID, ownerID, nil)
}

// AdvanceFrom advances only if the session is still on fromIndex, so a retried
// request cannot skip a question.
func (s *QuizService) AdvanceFrom(ctx context.Context, quizID, ownerID string, fromIndex int) (AdvanceResult, error) {
	return s.advance(ctx, quizID, ownerID, &fromIndex)
}

func (s *QuizService) advance(ctx context.Context, quizID, ownerID string, fromIndex *int) (res AdvanceResult, err error) {
	defer func() { s.observe("advance", err) }()

	quiz, err := s.ownedQuiz(ctx, quizID, ownerID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if quiz.Status != domain.StatusActive {
		return AdvanceResult{}, domain.InvalidState("advance", quiz.Status)
	}
	if fromIndex != nil && *fromIndex != quiz.CurrentQuestionIndex {
		return AdvanceResult{}, fmt.Errorf("%w: quiz is on question %d, not %d", domain.ErrVersionConflict, quiz.CurrentQuestionIndex, *fromIndex)
	}

	// Close the ledger before the swap so no answer for this question lands after it.
	last := quiz.IsLastQuestion()
	if err := s.closeQuestions(ctx, quiz, last); err != nil {
		return AdvanceResult{}, fmt.Errorf("close question %d of %s: %w", quiz.CurrentQuestionIndex, quizID, err)
	}

	now := s.now()
	next := quiz.Clone()
	next.UpdatedAt = now
	if !last {
		next.CurrentQuestionIndex++
		if err := s.commit(ctx, &next, quiz.Version); err != nil {
			return AdvanceResult{}, fmt.Errorf("advance quiz %s: %w", quizID, err)
		}
		s.publish(ctx, domain.SnapshotOf(next, domain.EventAdvanced, now))
		return AdvanceResult{Quiz: next}, nil
	}

	// The ledger is read only after the finish swap; only its winner records results.
	next.Status = domain.StatusFinished
	if err := s.commit(ctx, &next, quiz.Version); err != nil {
		return AdvanceResult{}, fmt.Errorf("finish quiz %s: %w", quizID, err)
	}
	board, err := s.recordResults(ctx, next, now)
	res = AdvanceResult{Quiz: next}
	if err != nil {
		s.publish(ctx, domain.SnapshotOf(next, domain.EventFinished, now))
		return res, fmt.Errorf("record results for %s: %w", quizID, err)
	}
	res.Leaderboard = &board
	snapshot := domain.SnapshotOf(next, domain.EventFinished, now)
	snapshot.Leaderboard = &board
	s.publish(ctx, snapshot)
	return res, nil
}

// RecordResults recomputes a finished quiz's leaderboard and rewrites its result
// records. It repairs a finish whose result write failed and is safe to repeat.
func (s *QuizService) RecordResults(ctx context.Context, quizID, ownerID string) (board domain.Leaderboard, err error) {
	defer func() { s.observe("record_results", err) }()

	quiz, err := s.ownedQuiz(ctx, quizID, ownerID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if quiz.Status != domain.StatusFinished {
		return domain.Leaderboard{}, domain.InvalidState("record results", quiz.Status)
	}
	if err := s.closeQuestions(ctx, quiz, true); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("freeze answers of %s: %w", quizID, err)
	}
	return s.recordResults(ctx, quiz, quiz.UpdatedAt)
}

func (s *QuizService) recordResults(ctx context.Context, quiz domain.Quiz, finishedAt time.Time) (domain.Leaderboard, error) {
	sheet, err := call(ctx, s.callTimeout, func(ctx context.Context) (domain.AnswerSheet, error) {
		return s.store.Answers.ListAnswers(ctx, quiz.ID)
	})
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load answers: %w", err)
	}
	board := Score(quiz, sheet, s.now())
	results := ResultsFor(quiz, board, sheet, finishedAt)
	if err := s.exec(ctx, func(ctx context.Context) error {
		return s.store.Results.PutResults(ctx, results)
	}); err != nil {
		return board, err
	}
	return board, nil
}

// closeQuestions closes the current question, or the whole ledger when final.
func (s *QuizService) closeQuestions(ctx context.Context, quiz domain.Quiz, final bool) error {
	through := quiz.CurrentQuestionIndex
	if final {
		through = len(quiz.Questions) - 1
	}
	return s.exec(ctx, func(ctx context.Context) error {
		return s.store.Answers.CloseQuestions(ctx, quiz.ID, through, final)
	})
}

// Leaderboard ranks a finished quiz from its frozen ledger.
func (s *QuizService) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if quiz.Status != domain.StatusFinished {
		return domain.Leaderboard{}, domain.InvalidState("rank", quiz.Status)
	}
	sheet, err := call(ctx, s.callTimeout, func(ctx context.Context) (domain.AnswerSheet, error) {
		return s.store.Answers.ListAnswers(ctx, quiz.ID)
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return Score(quiz, sheet, s.now()), nil
}

// SubmitAnswer records a player's selection for the open question. A later
// submission for the same question replaces the earlier one.
func (s *QuizService) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (err error) {
	defer func() { s.observe("submit", err) }()

	quiz, err := s.getQuiz(ctx, in.QuizID)
	if err != nil {
		return err
	}
	if quiz.Status != domain.StatusActive {
		return domain.InvalidState("answer", quiz.Status)
	}
	if in.QuestionIndex != quiz.CurrentQuestionIndex {
		return fmt.Errorf("%w: question %d is not open, current is %d", domain.ErrInvalidState, in.QuestionIndex, quiz.CurrentQuestionIndex)
	}
	if _, ok := quiz.Player(in.PlayerID); !ok {
		return domain.ErrParticipantNotFound
	}
	if err := domain.ValidateOption(quiz.Questions[in.QuestionIndex], in.SelectedOptionIndex); err != nil {
		return err
	}

	now := s.now()
	answer := domain.Answer{
		QuizID:              quiz.ID,
		PlayerID:            in.PlayerID,
		QuestionIndex:       in.QuestionIndex,
		SelectedOptionIndex: in.SelectedOptionIndex,
		SubmittedAt:         now,
	}
	if err := s.exec(ctx, func(ctx context.Context) error {
		return s.store.Answers.PutAnswer(ctx, answer)
	}); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	snapshot := domain.SnapshotOf(quiz, domain.EventAnswered, now)
	snapshot.PlayerID = in.PlayerID
	s.publish(ctx, snapshot)
	return nil
}

// GetAnswer returns the selected option a player submitted for a question.
func (s *QuizService) GetAnswer(ctx context.Context, quizID, playerID string, questionIndex int) (int, bool, error) {
	answer, ok, err := call3(ctx, s.callTimeout, func(ctx context.Context) (domain.Answer, bool, error) {
		return s.store.Answers.GetAnswer(ctx, quizID, playerID, questionIndex)
	})
	if err != nil || !ok {
		return 0, false, err
	}
	return answer.SelectedOptionIndex, true, nil
}

// Delete removes a quiz and its ledger. Result records are kept as history.
func (s *QuizService) Delete(ctx context.Context, quizID, ownerID string) (err error) {
	defer func() { s.observe("delete", err) }()

	quiz, err := s.ownedQuiz(ctx, quizID, ownerID)
	if err != nil {
		return err
	}
	if err := s.exec(ctx, func(ctx context.Context) error {
		return s.store.Quizzes.DeleteQuiz(ctx, quizID, ownerID)
	}); err != nil {
		return fmt.Errorf("delete quiz %s: %w", quizID, err)
	}
	if err := s.exec(ctx, func(ctx context.Context) error {
		return s.store.Answers.DeleteAnswers(ctx, quizID)
	}); err != nil {
		return fmt.Errorf("delete answers of %s: %w", quizID, err)
	}
	s.publish(ctx, domain.SnapshotOf(quiz, domain.EventDeleted, s.now()))
	return nil
}

// Subscribe returns the current snapshot of a quiz and a channel of later ones.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, quizID string) (domain.Snapshot, <-chan domain.Snapshot, func(), error) {
	if s.notifier == nil {
		return domain.Snapshot{}, nil, nil, ErrNotificationsDisabled
	}
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return domain.Snapshot{}, nil, nil, err
	}
	ch, cancel, err := s.notifier.Subscribe(ctx, quiz.ID)
	if err != nil {
		return domain.Snapshot{}, nil, nil, err
	}
	return domain.SnapshotOf(quiz, domain.EventSnapshot, s.now()), ch, cancel, nil
}

func (s *QuizService) ownedQuiz(ctx context.Context, quizID, ownerID string) (domain.Quiz, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if ownerID == "" || quiz.OwnerID != ownerID {
		return domain.Quiz{}, domain.ErrNotOwner
	}
	return quiz, nil
}

func (s *QuizService) getQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return call(ctx, s.callTimeout, func(ctx context.Context) (domain.Quiz, error) {
		return s.store.Quizzes.GetQuiz(ctx, quizID)
	})
}

// commit writes quiz over expectedVersion and bumps its in-memory version on success.
func (s *QuizService) commit(ctx context.Context, quiz *domain.Quiz, expectedVersion int64) error {
	quiz.Version = expectedVersion
	err := s.exec(ctx, func(ctx context.Context) error {
		return s.store.Quizzes.PutQuiz(ctx, *quiz, expectedVersion)
	})
	if err != nil {
		return err
	}
	quiz.Version = expectedVersion + 1
	return nil
}

func (s *QuizService) publish(ctx context.Context, snapshot domain.Snapshot) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, snapshot)
	}
	for _, sink := range s.sinks {
		sink.Publish(ctx, snapshot)
	}
}

func (s *QuizService) exec(ctx context.Context, fn func(context.Context) error) error {
	_, err := call(ctx, s.callTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = domain.Transient(err)
	}
	return v, err
}

func call3[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, bool, error)) (T, bool, error) {
	var ok bool
	v, err := call(ctx, timeout, func(ctx context.Context) (T, error) {
		var v T
		var err error
		v, ok, err = fn(ctx)
		return v, err
	})
	return v, ok, err
}
