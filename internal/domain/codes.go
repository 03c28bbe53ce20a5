package domain

import "math/rand/v2"

// CodeLength is the size of a join code.
const CodeLength = 6

// Excludes 0/O and 1/I/L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewCode draws a random join code.
func NewCode() string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// DemoQuizID is the well-known code of the seeded demo quiz.
const DemoQuizID = "DEMO"

// DemoQuiz is the sample quiz served when demo seeding is enabled.
func DemoQuiz(ownerID string) Quiz {
	return Quiz{
		ID:      DemoQuizID,
		Title:   "Demo Quiz",
		OwnerID: ownerID,
		Status:  StatusLobby,
		Questions: []Question{
			{Text: "What is the capital of France?", Options: []string{"London", "Berlin", "Paris", "Madrid"}, CorrectOptionIndex: 2},
			{Text: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectOptionIndex: 1},
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectOptionIndex: 1},
		},
		Players: []Player{{ID: ownerID, DisplayName: HostDisplayName}},
	}
}
