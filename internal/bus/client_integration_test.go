//go:build integration

package bus

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)

	client, err := NewClient(natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan Completion, 1)

	err = client.Subscribe("chat.searchbot.test.>", func(subject string, data []byte) {
		var c Completion
		json.Unmarshal(data, &c)
		received <- c
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	sent := Completion{
		EventID:   "evt-test-1",
		Channel:   "C123",
		Question:  "ping",
		Answer:    "pong",
		Timestamp: time.Now().UTC(),
	}
	if err := client.Publish("chat.searchbot.test.ping", sent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.EventID != sent.EventID || got.Answer != sent.Answer {
			t.Errorf("round-trip mismatch: got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive published completion")
	}
}
