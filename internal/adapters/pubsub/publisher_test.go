package pubsub

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	testProject = "noise-alarm-dev"
	testTopic   = "rasppi-soundmeter-measurements"
)

// startFakeServer runs an in-process Pub/Sub emulator.
// When withTopic is set the measurements topic is created up front.
func startFakeServer(t *testing.T, withTopic bool) *pstest.Server {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	if withTopic {
		ctx := context.Background()
		admin, err := pubsub.NewClient(ctx, testProject,
			option.WithEndpoint(srv.Addr),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		if err != nil {
			t.Fatalf("failed to create admin client: %v", err)
		}
		defer admin.Close()

		if _, err := admin.CreateTopic(ctx, testTopic); err != nil {
			t.Fatalf("failed to create topic: %v", err)
		}
	}

	return srv
}

func newTestPublisher(t *testing.T, srv *pstest.Server) *Publisher {
	t.Helper()

	p, err := NewPublisher(context.Background(), Config{
		Project:  testProject,
		Topic:    testTopic,
		Endpoint: srv.Addr,
	})
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPublish_ReturnsServerID(t *testing.T) {
	srv := startFakeServer(t, true)
	p := newTestPublisher(t, srv)

	payload := `{"device":"pi-01","timestamp":"2024-03-09T14:05:07+01:00","decibel_level":42.3}`
	id, err := p.Publish(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id")
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message on server, got %d", len(msgs))
	}
	if msgs[0].ID != id {
		t.Errorf("expected server id %q, got %q", msgs[0].ID, id)
	}
	if string(msgs[0].Data) != payload {
		t.Errorf("payload mismatch: got %s", msgs[0].Data)
	}
}

func TestPublish_MissingTopic(t *testing.T) {
	srv := startFakeServer(t, false)
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected error publishing to a missing topic")
	}
	if !strings.Contains(err.Error(), p.Destination()) {
		t.Errorf("expected error to name the topic, got %v", err)
	}
}

func TestDestination(t *testing.T) {
	srv := startFakeServer(t, true)
	p := newTestPublisher(t, srv)

	want := "projects/noise-alarm-dev/topics/rasppi-soundmeter-measurements"
	if got := p.Destination(); got != want {
		t.Errorf("Destination() = %q, want %q", got, want)
	}
}

func TestNewPublisher_MissingCredentials(t *testing.T) {
	_, err := NewPublisher(context.Background(), Config{
		Project:         testProject,
		Topic:           testTopic,
		CredentialsFile: "does-not-exist.json",
	})
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}
