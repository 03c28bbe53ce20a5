package domain

import (
	"fmt"
	"strings"
)

// ValidateTitle trims and checks a quiz title.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "must not be empty")
	}
	return title, nil
}

// ValidateDisplayName trims and checks a player name.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("displayName", "must not be empty")
	}
	return name, nil
}

// ValidateQuestions checks every question and returns trimmed copies.
func ValidateQuestions(questions []Question) ([]Question, error) {
	if len(questions) == 0 {
		return nil, invalid("questions", "must contain at least one question")
	}
	out := make([]Question, len(questions))
	for i, q := range questions {
		field := fmt.Sprintf("questions[%d]", i)
		text := strings.TrimSpace(q.Text)
		if text == "" {
			return nil, invalid(field+".text", "must not be empty")
		}
		if len(q.Options) < 2 {
			return nil, invalid(field+".options", "must contain at least two options")
		}
		options := make([]string, len(q.Options))
		for j, opt := range q.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				return nil, invalid(fmt.Sprintf("%s.options[%d]", field, j), "must not be empty")
			}
			options[j] = opt
		}
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(options) {
			return nil, invalid(field+".correctOptionIndex", "out of range")
		}
		out[i] = Question{Text: text, Options: options, CorrectOptionIndex: q.CorrectOptionIndex}
	}
	return out, nil
}

// ValidateOption checks a selection against the question's option count.
func ValidateOption(q Question, selected int) error {
	if selected < 0 || selected >= len(q.Options) {
		return invalid("selectedOptionIndex", "out of range")
	}
	return nil
}

// RequireID trims an identifier and rejects blanks.
func RequireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid(field, "must not be empty")
	}
	return id, nil
}
