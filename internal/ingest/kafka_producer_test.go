package ingest

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/example/priority-ride/internal/models"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { c.closed = true; return nil }

func TestPublishRoundTripsThroughDecode(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaProducerWithWriter(w)
	id := int64(77)
	ev := models.BookingEvent{Type: models.EventUnwindFailed, RunID: "r1", Source: models.SourceOrchestrator,
		Record: models.BookingRecord{AccountKey: "fay", RideID: &id, Role: models.RoleFiller, RideType: models.RideTypeShuttle}}

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "fay" {
		t.Fatalf("expected account key, got %q", m.Key)
	}
	if len(m.Headers) != 1 || string(m.Headers[0].Value) != "unwind_failed" {
		t.Fatalf("unexpected headers %+v", m.Headers)
	}
	got, err := DecodeEvent(m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != ev.Type || got.Record.RideID == nil || *got.Record.RideID != 77 {
		t.Fatalf("unexpected event %+v", got)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer closed")
	}
}
