package domain

import "time"

// Status is the lifecycle position of a quiz session.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// HostDisplayName is the name given to the owner when a quiz is created.
const HostDisplayName = "Host"

// Question is a multiple-choice question with exactly one correct option.
type Question struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
}

// Player is a participant registered in a quiz.
type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Quiz is both the authored definition and the live session state.
// Version is the optimistic concurrency token; zero means never stored.
type Quiz struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Questions            []Question `json:"questions"`
	OwnerID              string     `json:"ownerId"`
	Status               Status     `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	Players              []Player   `json:"players"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	UsageCount           int        `json:"usageCount"`
	LastUsedAt           time.Time  `json:"lastUsedAt"`
	Version              int64      `json:"version"`
}

// Player returns the registered player with the given ID.
func (q Quiz) Player(id string) (Player, bool) {
	for _, p := range q.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// IsLastQuestion reports whether the session sits on the final question.
func (q Quiz) IsLastQuestion() bool {
	return q.CurrentQuestionIndex >= len(q.Questions)-1
}

// Clone returns a deep copy so callers can mutate slices without aliasing stored state.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	out.Players = append([]Player(nil), q.Players...)
	return out
}

// Answer is one player's selection for one question.
type Answer struct {
	QuizID              string    `json:"quizId"`
	PlayerID            string    `json:"playerId"`
	QuestionIndex       int       `json:"questionIndex"`
	SelectedOptionIndex int       `json:"selectedOptionIndex"`
	SubmittedAt         time.Time `json:"submittedAt"`
}

// AnswerSheet is a point-in-time copy of a quiz's answer ledger.
type AnswerSheet struct {
	QuizID  string
	answers map[string]map[int]Answer
}

// NewAnswerSheet builds a sheet from ledger rows. Later rows for the same slot win.
func NewAnswerSheet(quizID string, answers []Answer) AnswerSheet {
	sheet := AnswerSheet{QuizID: quizID, answers: make(map[string]map[int]Answer)}
	for _, a := range answers {
		sheet.put(a)
	}
	return sheet
}

func (s *AnswerSheet) put(a Answer) {
	byQuestion, ok := s.answers[a.PlayerID]
	if !ok {
		byQuestion = make(map[int]Answer)
		s.answers[a.PlayerID] = byQuestion
	}
	byQuestion[a.QuestionIndex] = a
}

// Get returns the recorded answer for a player and question.
func (s AnswerSheet) Get(playerID string, questionIndex int) (Answer, bool) {
	a, ok := s.answers[playerID][questionIndex]
	return a, ok
}

// CompletedAt is the time of the player's latest submission.
func (s AnswerSheet) CompletedAt(playerID string) (time.Time, bool) {
	var latest time.Time
	for _, a := range s.answers[playerID] {
		if a.SubmittedAt.After(latest) {
			latest = a.SubmittedAt
		}
	}
	return latest, !latest.IsZero()
}

// Len counts recorded answers across all players.
func (s AnswerSheet) Len() int {
	n := 0
	for _, byQuestion := range s.answers {
		n += len(byQuestion)
	}
	return n
}

// ResultRecord is the persisted final score of one player in one finished quiz.
type ResultRecord struct {
	QuizID         string         `json:"quizId"`
	QuizTitle      string         `json:"quizTitle"`
	PlayerID       string         `json:"playerId"`
	PlayerName     string         `json:"playerName"`
	Score          int            `json:"score"`
	TotalQuestions int            `json:"totalQuestions"`
	CompletedAt    time.Time      `json:"completedAt"`
	Answers        []ResultAnswer `json:"answers"`
}

// ResultAnswer is one graded selection inside a result record.
type ResultAnswer struct {
	QuestionIndex       int  `json:"questionIndex"`
	SelectedOptionIndex int  `json:"selectedOptionIndex"`
	IsCorrect           bool `json:"isCorrect"`
}

// LeaderboardEntry is a ranked row of a final leaderboard.
type LeaderboardEntry struct {
	Rank        int        `json:"rank"`
	PlayerID    string     `json:"playerId"`
	PlayerName  string     `json:"playerName"`
	Score       int        `json:"score"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Leaderboard is the ordered outcome of a quiz.
type Leaderboard struct {
	QuizID         string             `json:"quizId"`
	TotalQuestions int                `json:"totalQuestions"`
	Entries        []LeaderboardEntry `json:"entries"`
	ComputedAt     time.Time          `json:"computedAt"`
}

// Snapshot events.
const (
	EventSnapshot     = "snapshot"
	EventCreated      = "quiz_created"
	EventPlayerJoined = "player_joined"
	EventStarted      = "quiz_started"
	EventAdvanced     = "question_advanced"
	EventAnswered     = "answer_submitted"
	EventFinished     = "quiz_finished"
	EventDeleted      = "quiz_deleted"
)

// Snapshot is what subscribers receive after a committed change.
// It never carries correct option indexes.
type Snapshot struct {
	QuizID               string       `json:"quizId"`
	Event                string       `json:"event"`
	Status               Status       `json:"status"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	QuestionCount        int          `json:"questionCount"`
	Players              []Player     `json:"players"`
	Version              int64        `json:"version"`
	PlayerID             string       `json:"playerId,omitempty"`
	Leaderboard          *Leaderboard `json:"leaderboard,omitempty"`
	At                   time.Time    `json:"at"`
}

// SnapshotOf captures the public state of a quiz.
func SnapshotOf(q Quiz, event string, at time.Time) Snapshot {
	return Snapshot{
		QuizID:               q.ID,
		Event:                event,
		Status:               q.Status,
		CurrentQuestionIndex: q.CurrentQuestionIndex,
		QuestionCount:        len(q.Questions),
		Players:              append([]Player(nil), q.Players...),
		Version:              q.Version,
		At:                   at,
	}
}
