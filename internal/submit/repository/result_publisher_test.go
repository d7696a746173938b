package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"codejudge/internal/common/mq"
	"codejudge/internal/judge/result"
	"codejudge/internal/submit/repository"
	appErr "codejudge/pkg/errors"
)

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestPublishResultKeysBySubmission(t *testing.T) {
	producer := &fakeProducer{}
	publisher := repository.NewMQResultPublisher(producer, "")

	event := repository.ResultEvent{
		SubmissionID: "s-1",
		UserID:       5,
		ProblemID:    9,
		Language:     "java",
		Outcome:      result.Outcome{Status: result.StatusAccepted, Passed: 2, Total: 2},
		FirstSolve:   true,
	}
	if err := publisher.PublishResult(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != repository.DefaultResultTopic || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish topic=%q count=%d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "s-1" || msg.Headers["status"] != "accepted" {
		t.Fatalf("unexpected message %+v", msg)
	}
	var decoded repository.ResultEvent
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.FirstSolve || decoded.Outcome.Passed != 2 || decoded.ResolvedAt == 0 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPublishResultWrapsProducerError(t *testing.T) {
	publisher := repository.NewMQResultPublisher(&fakeProducer{err: errors.New("broker down")}, "results")
	err := publisher.PublishResult(context.Background(), repository.ResultEvent{SubmissionID: "s-1"})
	if appErr.GetCode(err) != appErr.ServiceUnavailable {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}
