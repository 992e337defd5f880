package sqlite

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	outbox, err := NewOutbox(dbPath, "rasppi-soundmeter-measurements")
	if err != nil {
		t.Fatalf("failed to create SQLite outbox: %v", err)
	}
	t.Cleanup(func() { outbox.Close() })
	return outbox
}

func TestPublishAndRecent(t *testing.T) {
	outbox := newTestOutbox(t)
	ctx := context.Background()

	payload := `{"device":"pi-01","timestamp":"2024-03-09T14:05:07+01:00","decibel_level":42.3}`
	id, err := outbox.Publish(ctx, []byte(payload))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id == "" || id == "0" {
		t.Fatalf("expected a row id, got %q", id)
	}

	msgs, err := outbox.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if strconv.FormatInt(msgs[0].ID, 10) != id {
		t.Errorf("expected id %s, got %d", id, msgs[0].ID)
	}
	if string(msgs[0].Payload) != payload {
		t.Errorf("payload mismatch: got %s", msgs[0].Payload)
	}
	if msgs[0].Topic != "rasppi-soundmeter-measurements" {
		t.Errorf("unexpected topic %q", msgs[0].Topic)
	}
	if msgs[0].PublishedAt.IsZero() {
		t.Error("expected published_at to be set")
	}
}

func TestPublish_IncreasingIDs(t *testing.T) {
	outbox := newTestOutbox(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := outbox.Publish(ctx, []byte(`{}`))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			t.Fatalf("id %q is not numeric: %v", id, err)
		}
		if n <= last {
			t.Errorf("expected id > %d, got %d", last, n)
		}
		last = n
	}
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	outbox := newTestOutbox(t)
	ctx := context.Background()

	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if _, err := outbox.Publish(ctx, []byte(p)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	msgs, err := outbox.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Payload) != `{"n":3}` || string(msgs[1].Payload) != `{"n":2}` {
		t.Errorf("unexpected order: %s, %s", msgs[0].Payload, msgs[1].Payload)
	}
}

func TestRecent_Empty(t *testing.T) {
	outbox := newTestOutbox(t)

	msgs, err := outbox.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}
