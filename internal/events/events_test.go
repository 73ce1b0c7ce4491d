package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/keyxmakerx/adpilot/internal/config"
)

// recordingWriter captures written messages.
type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNew_NoBrokersIsNoop(t *testing.T) {
	p := New(config.KafkaConfig{TopicPrefix: "adpilot"})
	if _, ok := p.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", p)
	}
	if err := p.Publish(context.Background(), "ab_results", "a", map[string]any{}); err != nil {
		t.Errorf("noop publish returned %v", err)
	}
}

func TestPublish_TopicKeyAndPayload(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, "adpilot")

	err := p.Publish(context.Background(), "optimizer_actions", "auto-1", map[string]any{"action": "pause"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "adpilot.optimizer_actions" {
		t.Errorf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "auto-1" {
		t.Errorf("unexpected key %q", msg.Key)
	}
	var body map[string]any
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["action"] != "pause" {
		t.Errorf("unexpected payload %v", body)
	}
}

func TestPublish_NoPrefix(t *testing.T) {
	p := newKafkaPublisher(&recordingWriter{}, "")
	if got := p.Topic("ad_errors"); got != "ad_errors" {
		t.Errorf("expected bare topic, got %q", got)
	}
}

func TestPublish_WriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&recordingWriter{err: boom}, "adpilot")
	if err := p.Publish(context.Background(), "ab_results", "k", struct{}{}); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
}

func TestPublish_UnencodablePayload(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, "adpilot")
	if err := p.Publish(context.Background(), "ab_results", "k", make(chan int)); err == nil {
		t.Fatal("expected encoding error")
	}
	if len(w.msgs) != 0 {
		t.Error("nothing should be written")
	}
}

func TestClose(t *testing.T) {
	w := &recordingWriter{}
	if err := newKafkaPublisher(w, "x").Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.closed {
		t.Error("expected writer closed")
	}
}
