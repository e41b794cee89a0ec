// Package api talks to the remote chatnote HTTP API.
package api

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a streamed chat completion
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model"`
	ID       string        `json:"id"`
}

type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type HistoryMessage struct {
	ID        string `json:"id,omitempty"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CreatedAt string `json:"createdAt"`
}

type Card struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Tags      []Tag  `json:"tags"`
}

type CardInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

// ParseFrequency validates a frequency name
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyCustom:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q (want daily, weekly or custom)", s)
	}
}

type Question struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Frequency Frequency `json:"frequency"`
	CreatedAt string    `json:"createdAt"`
}

type QuestionInput struct {
	QuestionText string    `json:"questionText"`
	Frequency    Frequency `json:"frequency"`
}

type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId,omitempty"`
	Content    string `json:"content"`
	ParentID   string `json:"parentId,omitempty"`
	Author     string `json:"author,omitempty"`
	AnswerType int    `json:"answerType"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdateTime string `json:"updateTime,omitempty"`
}

type AnswerInput struct {
	QuestionID string `json:"questionId"`
	Content    string `json:"content"`
	AnswerType int    `json:"answerType"`
	ParentID   string `json:"parentId,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by login and register
type AuthResult struct {
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user,omitempty"`
	Message string          `json:"message,omitempty"`
}

// listOf decodes either a bare array or an object holding the array under
// a single field, which some list endpoints use.
type listOf[T any] struct {
	field string
	items []T
}

func (l *listOf[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &l.items); err == nil {
		return nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("expected a list or an object: %w", err)
	}
	raw, ok := wrapped[l.field]
	if !ok || string(raw) == "null" {
		l.items = nil
		return nil
	}
	return json.Unmarshal(raw, &l.items)
}
