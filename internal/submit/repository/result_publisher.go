package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codejudge/internal/common/mq"
	"codejudge/internal/judge/result"
	appErr "codejudge/pkg/errors"
)

// DefaultResultTopic carries one event per resolved submission.
const DefaultResultTopic = "submission.result"

// ResultEvent is the payload downstream consumers (leaderboards, notifications) read.
type ResultEvent struct {
	SubmissionID string         `json:"submission_id"`
	UserID       int64          `json:"user_id"`
	ProblemID    int64          `json:"problem_id"`
	Language     string         `json:"language"`
	Outcome      result.Outcome `json:"outcome"`
	FirstSolve   bool           `json:"first_solve"`
	ResolvedAt   int64          `json:"resolved_at"`
}

// ResultPublisher announces resolved submissions.
type ResultPublisher interface {
	PublishResult(ctx context.Context, event ResultEvent) error
}

// MQResultPublisher publishes result events to a message queue.
type MQResultPublisher struct {
	producer mq.Producer
	topic    string
}

func NewMQResultPublisher(producer mq.Producer, topic string) *MQResultPublisher {
	if topic == "" {
		topic = DefaultResultTopic
	}
	return &MQResultPublisher{producer: producer, topic: topic}
}

func (p *MQResultPublisher) PublishResult(ctx context.Context, event ResultEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("result publisher is not configured")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if event.ResolvedAt == 0 {
		event.ResolvedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.SubmissionID
	message.SetHeader("status", string(event.Outcome.Status))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish result event failed")
	}
	return nil
}
