package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/muahq/mua/internal/models"
	"github.com/muahq/mua/internal/store"
)

func alwaysCheckpoint(*models.UserBlockVersion, string) bool { return true }

func TestCreateUserBlockWritesFirstVersion(t *testing.T) {
	bs := store.NewBlockStore(setupTestBase(t))
	ctx := context.Background()

	req := models.CreateUserBlockRequest{Content: "Lunch with Dana about the roadmap"}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	b, err := bs.CreateUserBlock(ctx, req)
	if err != nil {
		t.Fatalf("CreateUserBlock: %v", err)
	}

	if b.AuthorType != models.AuthorUser || b.Revision != 1 {
		t.Errorf("got author %q revision %d, want user/1", b.AuthorType, b.Revision)
	}

	versions, err := bs.ListVersions(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}

	if len(versions) != 1 || versions[0].CaptureReason != models.ReasonCreate {
		t.Fatalf("versions = %+v, want one create version", versions)
	}
}

func TestUpdateUserBlockRevisionConflict(t *testing.T) {
	bs := store.NewBlockStore(setupTestBase(t))
	ctx := context.Background()

	req := models.CreateUserBlockRequest{Content: "draft"}
	_ = req.Validate()

	b, err := bs.CreateUserBlock(ctx, req)
	if err != nil {
		t.Fatalf("CreateUserBlock: %v", err)
	}

	upd := models.BlockUpdate{Content: "draft two", Reason: models.ReasonFinalize, ExpectedRevision: b.Revision}

	updated, versioned, err := bs.UpdateUserBlock(ctx, b.ID, upd, alwaysCheckpoint)
	if err != nil {
		t.Fatalf("UpdateUserBlock: %v", err)
	}

	if !versioned || updated.Revision != 2 {
		t.Errorf("versioned=%v revision=%d, want true/2", versioned, updated.Revision)
	}

	_, _, err = bs.UpdateUserBlock(ctx, b.ID, upd, alwaysCheckpoint)
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("stale revision err = %v, want ErrConflict", err)
	}

	versions, err := bs.ListVersions(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}

	if len(versions) != 2 || versions[1].VersionNo != 2 {
		t.Errorf("versions = %+v, want two", versions)
	}
}

func TestCheckpointUserBlockRecordsSkippedContent(t *testing.T) {
	bs := store.NewBlockStore(setupTestBase(t))
	ctx := context.Background()

	req := models.CreateUserBlockRequest{Content: "A"}
	_ = req.Validate()

	b, err := bs.CreateUserBlock(ctx, req)
	if err != nil {
		t.Fatalf("CreateUserBlock: %v", err)
	}

	never := func(*models.UserBlockVersion, string) bool { return false }

	upd := models.BlockUpdate{Content: "B", Reason: models.ReasonAutosave, ExpectedRevision: b.Revision}
	if _, versioned, err := bs.UpdateUserBlock(ctx, b.ID, upd, never); err != nil || versioned {
		t.Fatalf("UpdateUserBlock versioned=%v err=%v", versioned, err)
	}

	versioned, err := bs.CheckpointUserBlock(ctx, b.ID, models.ReasonFinalize)
	if err != nil || !versioned {
		t.Fatalf("CheckpointUserBlock versioned=%v err=%v, want true", versioned, err)
	}

	versioned, err = bs.CheckpointUserBlock(ctx, b.ID, models.ReasonFinalize)
	if err != nil || versioned {
		t.Errorf("second CheckpointUserBlock versioned=%v err=%v, want false", versioned, err)
	}

	versions, err := bs.ListVersions(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}

	if len(versions) != 2 || versions[1].Content != "B" || versions[1].CaptureReason != models.ReasonFinalize {
		t.Errorf("versions = %+v, want A then finalize B", versions)
	}
}

func TestUpdateUserBlockWithoutCheckpoint(t *testing.T) {
	bs := store.NewBlockStore(setupTestBase(t))
	ctx := context.Background()

	req := models.CreateUserBlockRequest{Content: "one"}
	_ = req.Validate()

	b, err := bs.CreateUserBlock(ctx, req)
	if err != nil {
		t.Fatalf("CreateUserBlock: %v", err)
	}

	var seen *models.UserBlockVersion

	_, versioned, err := bs.UpdateUserBlock(ctx, b.ID,
		models.BlockUpdate{Content: "one more", Reason: models.ReasonAutosave, ExpectedRevision: 1},
		func(latest *models.UserBlockVersion, _ string) bool {
			seen = latest
			return false
		})
	if err != nil {
		t.Fatalf("UpdateUserBlock: %v", err)
	}

	if versioned {
		t.Error("versioned = true, want false")
	}

	if seen == nil || seen.VersionNo != 1 {
		t.Errorf("checkpoint saw %+v, want version 1", seen)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	bs := store.NewBlockStore(setupTestBase(t))

	for _, id := range []string{"nope", "00000000-0000-0000-0000-000000000000"} {
		if _, err := bs.GetUserBlock(context.Background(), id); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetUserBlock(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestCreateMuaBlockDedupe(t *testing.T) {
	bs := store.NewBlockStore(setupTestBase(t))
	ctx := context.Background()

	req := models.CreateMuaBlockRequest{Content: "Follow up with Dana", Kind: models.KindActionOpen, Confidence: 0.7, DedupeKey: "k1"}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	first, created, err := bs.CreateMuaBlock(ctx, req)
	if err != nil || !created {
		t.Fatalf("first CreateMuaBlock created=%v err=%v", created, err)
	}

	second, created, err := bs.CreateMuaBlock(ctx, req)
	if err != nil {
		t.Fatalf("second CreateMuaBlock: %v", err)
	}

	if created || second.ID != first.ID {
		t.Errorf("second insert created=%v id=%s, want existing %s", created, second.ID, first.ID)
	}

	if first.Kind != models.KindActionOpen {
		t.Errorf("kind = %q, want action_open", first.Kind)
	}
}
