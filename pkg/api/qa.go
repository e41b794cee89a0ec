package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) ListQuestions(ctx context.Context) ([]Question, error) {
	list := listOf[Question]{field: "data"}
	if err := c.do(ctx, http.MethodGet, "/qa_question", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return list.items, nil
}

func (c *Client) GetQuestion(ctx context.Context, id string) (*Question, error) {
	var q Question
	if err := c.do(ctx, http.MethodGet, "/qa_question/"+url.PathEscape(id), nil, &q); err != nil {
		return nil, fmt.Errorf("failed to get question %s: %w", id, err)
	}
	return &q, nil
}

func (c *Client) CreateQuestion(ctx context.Context, in QuestionInput) (*Question, error) {
	var q Question
	if err := c.do(ctx, http.MethodPost, "/qa_question", in, &q); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}
	return &q, nil
}

func (c *Client) UpdateQuestion(ctx context.Context, q Question) (*Question, error) {
	var updated Question
	if err := c.do(ctx, http.MethodPut, "/qa_question", q, &updated); err != nil {
		return nil, fmt.Errorf("failed to update question %s: %w", q.ID, err)
	}
	return &updated, nil
}

func (c *Client) DeleteQuestion(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/qa_question/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete question %s: %w", id, err)
	}
	return nil
}

func (c *Client) ListAnswers(ctx context.Context) ([]Answer, error) {
	var answers []Answer
	if err := c.do(ctx, http.MethodGet, "/qa_answer", nil, &answers); err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

// QuestionAnswers returns the flat answer list of a question
func (c *Client) QuestionAnswers(ctx context.Context, questionID string) ([]Answer, error) {
	var answers []Answer
	body := map[string]string{"questionId": questionID}
	if err := c.do(ctx, http.MethodPost, "/qa_answer/question-answers", body, &answers); err != nil {
		return nil, fmt.Errorf("failed to list answers of %s: %w", questionID, err)
	}
	return answers, nil
}

func (c *Client) AnswerDetail(ctx context.Context, id string) (*Answer, error) {
	var a Answer
	if err := c.do(ctx, http.MethodPost, "/qa_answer/detail", map[string]string{"id": id}, &a); err != nil {
		return nil, fmt.Errorf("failed to get answer %s: %w", id, err)
	}
	return &a, nil
}

func (c *Client) CreateAnswer(ctx context.Context, in AnswerInput) (*Answer, error) {
	var a Answer
	if err := c.do(ctx, http.MethodPost, "/qa_answer", in, &a); err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	return &a, nil
}

func (c *Client) UpdateAnswer(ctx context.Context, a Answer) (*Answer, error) {
	var updated Answer
	if err := c.do(ctx, http.MethodPost, "/qa_answer/update", a, &updated); err != nil {
		return nil, fmt.Errorf("failed to update answer %s: %w", a.ID, err)
	}
	return &updated, nil
}

func (c *Client) DeleteAnswer(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/qa_answer/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete answer %s: %w", id, err)
	}
	return nil
}
