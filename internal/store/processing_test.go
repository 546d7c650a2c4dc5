package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/muahq/mua/internal/models"
	"github.com/muahq/mua/internal/store"
)

func TestQueueProcessingSkipsUnchanged(t *testing.T) {
	ps := store.NewProcessingStore(setupTestBase(t))
	ctx := context.Background()
	id := uuid.NewString()

	queued, err := ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h1")
	if err != nil || !queued {
		t.Fatalf("first queue queued=%v err=%v", queued, err)
	}

	queued, err = ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h1")
	if err != nil || queued {
		t.Fatalf("duplicate queue queued=%v err=%v, want false", queued, err)
	}

	now, err := ps.Now(ctx)
	if err != nil {
		t.Fatalf("Now: %v", err)
	}

	claim, err := ps.ClaimNext(ctx, now.Add(time.Second), 8, 30*time.Minute)
	if err != nil || claim == nil {
		t.Fatalf("ClaimNext claim=%v err=%v", claim, err)
	}

	if err := ps.MarkProcessed(ctx, claim.SubjectType, claim.SubjectID, *claim.ClaimToken, "h1", "summary"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	queued, err = ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h1")
	if err != nil || queued {
		t.Errorf("requeue after processed queued=%v err=%v, want false", queued, err)
	}

	queued, err = ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h2")
	if err != nil || !queued {
		t.Errorf("requeue with new hash queued=%v err=%v, want true", queued, err)
	}
}

func TestClaimNextSingleClaim(t *testing.T) {
	ps := store.NewProcessingStore(setupTestBase(t))
	ctx := context.Background()

	if _, err := ps.QueueProcessing(ctx, models.SubjectArtifact, uuid.NewString(), "h"); err != nil {
		t.Fatalf("QueueProcessing: %v", err)
	}

	now, _ := ps.Now(ctx)
	before := now.Add(time.Second)

	first, err := ps.ClaimNext(ctx, before, 8, 30*time.Minute)
	if err != nil || first == nil {
		t.Fatalf("ClaimNext first=%v err=%v", first, err)
	}

	if first.State != models.StateProcessing || first.Attempts != 1 {
		t.Errorf("claimed state=%s attempts=%d", first.State, first.Attempts)
	}

	second, err := ps.ClaimNext(ctx, before, 8, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext second: %v", err)
	}

	if second != nil {
		t.Errorf("second claim = %+v, want nil", second)
	}
}

func TestMarkProcessedLostClaim(t *testing.T) {
	ps := store.NewProcessingStore(setupTestBase(t))
	ctx := context.Background()
	id := uuid.NewString()

	if _, err := ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h1"); err != nil {
		t.Fatalf("QueueProcessing: %v", err)
	}

	now, _ := ps.Now(ctx)

	claim, err := ps.ClaimNext(ctx, now.Add(time.Second), 8, 30*time.Minute)
	if err != nil || claim == nil {
		t.Fatalf("ClaimNext claim=%v err=%v", claim, err)
	}

	// A new revision arrives while the item is running.
	if _, err := ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h2"); err != nil {
		t.Fatalf("QueueProcessing h2: %v", err)
	}

	err = ps.MarkProcessed(ctx, claim.SubjectType, claim.SubjectID, *claim.ClaimToken, "h1", "")
	if !errors.Is(err, models.ErrNotClaimed) {
		t.Errorf("MarkProcessed err = %v, want ErrNotClaimed", err)
	}

	state, err := ps.GetState(ctx, models.SubjectUserBlock, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	if state.State != models.StatePending || state.InputHash != "h2" {
		t.Errorf("state = %s/%s, want pending/h2", state.State, state.InputHash)
	}
}

func TestClaimNextRespectsMaxAttempts(t *testing.T) {
	ps := store.NewProcessingStore(setupTestBase(t))
	ctx := context.Background()

	if _, err := ps.QueueProcessing(ctx, models.SubjectUserBlock, uuid.NewString(), "h"); err != nil {
		t.Fatalf("QueueProcessing: %v", err)
	}

	now, _ := ps.Now(ctx)

	claim, err := ps.ClaimNext(ctx, now.Add(time.Second), 1, 30*time.Minute)
	if err != nil || claim == nil {
		t.Fatalf("ClaimNext claim=%v err=%v", claim, err)
	}

	if err := ps.MarkError(ctx, claim.SubjectType, claim.SubjectID, *claim.ClaimToken, "boom"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	now, _ = ps.Now(ctx)

	again, err := ps.ClaimNext(ctx, now.Add(time.Second), 1, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	if again != nil {
		t.Errorf("claimed past attempt cap: %+v", again)
	}
}

func TestProcessingRetryLifecycle(t *testing.T) {
	ps := store.NewProcessingStore(setupTestBase(t))
	ctx := context.Background()
	id := uuid.NewString()

	if _, err := ps.QueueProcessing(ctx, models.SubjectUserBlock, id, "h1"); err != nil {
		t.Fatalf("QueueProcessing: %v", err)
	}

	now, _ := ps.Now(ctx)

	first, err := ps.ClaimNext(ctx, now.Add(time.Second), 8, 30*time.Minute)
	if err != nil || first == nil {
		t.Fatalf("ClaimNext first=%v err=%v", first, err)
	}

	if err := ps.MarkError(ctx, first.SubjectType, first.SubjectID, *first.ClaimToken, "completion timed out"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	state, err := ps.GetState(ctx, models.SubjectUserBlock, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	if state.State != models.StateError || state.Attempts != 1 || state.LastError == nil {
		t.Fatalf("after failure state=%s attempts=%d lastError=%v", state.State, state.Attempts, state.LastError)
	}

	now, _ = ps.Now(ctx)

	second, err := ps.ClaimNext(ctx, now.Add(time.Second), 8, 30*time.Minute)
	if err != nil || second == nil {
		t.Fatalf("ClaimNext second=%v err=%v", second, err)
	}

	if second.Attempts != 2 || second.LastError != nil {
		t.Errorf("reclaimed attempts=%d lastError=%v, want 2/nil", second.Attempts, second.LastError)
	}

	if err := ps.MarkProcessed(ctx, second.SubjectType, second.SubjectID, *second.ClaimToken, "h1", ""); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	state, err = ps.GetState(ctx, models.SubjectUserBlock, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	if state.State != models.StateProcessed || state.LastError != nil || state.Attempts != 2 {
		t.Errorf("final state=%s attempts=%d lastError=%v", state.State, state.Attempts, state.LastError)
	}

	if state.LastProcessedHash == nil || *state.LastProcessedHash != "h1" {
		t.Errorf("last processed hash = %v, want h1", state.LastProcessedHash)
	}
}
