//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_ClaimReleaseCycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	eventID := "integration-test-" + uuid.New().String()[:8]

	t.Cleanup(func() {
		s.ReleaseDelivery(ctx, eventID)
	})

	claimed, err := s.TryClaimDelivery(ctx, eventID)
	if err != nil {
		t.Fatalf("TryClaimDelivery failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	// A redelivery must not claim again
	claimed, err = s.TryClaimDelivery(ctx, eventID)
	if err != nil {
		t.Fatalf("second TryClaimDelivery failed: %v", err)
	}
	if claimed {
		t.Fatal("duplicate delivery should not claim")
	}

	if err := s.ReleaseDelivery(ctx, eventID); err != nil {
		t.Fatalf("ReleaseDelivery failed: %v", err)
	}

	// Released claims are available again
	claimed, err = s.TryClaimDelivery(ctx, eventID)
	if err != nil {
		t.Fatalf("TryClaimDelivery after release failed: %v", err)
	}
	if !claimed {
		t.Fatal("claim after release should succeed")
	}
}

func TestIntegration_PruneDeliveries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.PruneDeliveries(ctx, 30); err != nil {
		t.Fatalf("PruneDeliveries failed: %v", err)
	}
}
