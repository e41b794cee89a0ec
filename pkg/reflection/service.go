package reflection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/logger"
)

// Backend is the part of the API the reflection service needs
type Backend interface {
	ListQuestions(ctx context.Context) ([]api.Question, error)
	GetQuestion(ctx context.Context, id string) (*api.Question, error)
	CreateQuestion(ctx context.Context, in api.QuestionInput) (*api.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	QuestionAnswers(ctx context.Context, questionID string) ([]api.Answer, error)
	CreateAnswer(ctx context.Context, in api.AnswerInput) (*api.Answer, error)
	DeleteAnswer(ctx context.Context, id string) error
}

// Scheduler arranges reminders for new questions
type Scheduler interface {
	ScheduleReflectionReminder(question string, frequency api.Frequency)
}

var ErrEmptyText = errors.New("text is empty")

type Service struct {
	backend   Backend
	cache     *TreeCache
	scheduler Scheduler
}

// NewService creates a Service. scheduler may be nil.
func NewService(backend Backend, scheduler Scheduler) *Service {
	return &Service{
		backend:   backend,
		cache:     NewTreeCache(),
		scheduler: scheduler,
	}
}

func (s *Service) Questions(ctx context.Context) ([]api.Question, error) {
	return s.backend.ListQuestions(ctx)
}

func (s *Service) Question(ctx context.Context, id string) (*api.Question, error) {
	return s.backend.GetQuestion(ctx, id)
}

// Ask creates a question and schedules its reminder
func (s *Service) Ask(ctx context.Context, text string, frequency api.Frequency) (*api.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	q, err := s.backend.CreateQuestion(ctx, api.QuestionInput{QuestionText: text, Frequency: frequency})
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		s.scheduler.ScheduleReflectionReminder(text, frequency)
	}
	return q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	if err := s.backend.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

// Refresh fetches a question's answers and returns their reply tree
func (s *Service) Refresh(ctx context.Context, questionID string) ([]*Node, error) {
	answers, err := s.backend.QuestionAnswers(ctx, questionID)
	if err != nil {
		return nil, err
	}
	roots := s.cache.Tree(questionID, answers)
	logger.Debug("reflection %s: %d answers, %d threads", questionID, len(answers), len(roots))
	return roots, nil
}

// Tree returns the last tree fetched for a question
func (s *Service) Tree(questionID string) ([]*Node, bool) {
	return s.cache.Cached(questionID)
}

// Answer adds a top level answer to a question
func (s *Service) Answer(ctx context.Context, questionID, text string) (*api.Answer, error) {
	return s.Reply(ctx, questionID, "", text)
}

// Reply answers parentID, or the question itself when parentID is empty
func (s *Service) Reply(ctx context.Context, questionID, parentID, text string) (*api.Answer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	a, err := s.backend.CreateAnswer(ctx, api.AnswerInput{
		QuestionID: questionID,
		Content:    text,
		ParentID:   parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	s.cache.Invalidate(questionID)
	return a, nil
}

func (s *Service) DeleteAnswer(ctx context.Context, questionID, answerID string) error {
	if err := s.backend.DeleteAnswer(ctx, answerID); err != nil {
		return err
	}
	s.cache.Invalidate(questionID)
	return nil
}
