package store_test

import (
	"context"
	"testing"

	"github.com/muahq/mua/internal/models"
	"github.com/muahq/mua/internal/store"
)

func TestAddAliasSetSemantics(t *testing.T) {
	es := store.NewEntityStore(setupTestBase(t))
	ctx := context.Background()

	e, err := es.CreateEntity(ctx, models.EntityPerson, "Dana Scully", false, 0.5)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	added, err := es.AddAlias(ctx, e.ID, "Dana")
	if err != nil || !added {
		t.Fatalf("AddAlias added=%v err=%v", added, err)
	}

	for _, dup := range []string{"dana", "DANA SCULLY"} {
		added, err = es.AddAlias(ctx, e.ID, dup)
		if err != nil || added {
			t.Errorf("AddAlias(%q) added=%v err=%v, want no-op", dup, added, err)
		}
	}

	for i := range models.MaxAliases + 4 {
		if _, err := es.AddAlias(ctx, e.ID, "alias-"+string(rune('a'+i))); err != nil {
			t.Fatalf("AddAlias: %v", err)
		}
	}

	got, err := es.GetEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}

	if len(got.Aliases) != models.MaxAliases {
		t.Errorf("aliases = %d, want cap %d", len(got.Aliases), models.MaxAliases)
	}
}

func TestConfirmAndDecay(t *testing.T) {
	es := store.NewEntityStore(setupTestBase(t))
	ctx := context.Background()

	e, err := es.CreateEntity(ctx, models.EntityPerson, "Mulder", false, 0.5)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	if err := es.Confirm(ctx, e.ID, 0.9); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if err := es.Decay(ctx, e.ID, 0.1); err != nil {
		t.Fatalf("Decay: %v", err)
	}

	got, _ := es.GetEntity(ctx, e.ID)
	if !got.Verified || got.Confidence != 0.1 {
		t.Errorf("verified=%v confidence=%v, want true/0.1", got.Verified, got.Confidence)
	}

	found, err := es.SearchEntities(ctx, models.EntityPerson, "mul", 10)
	if err != nil || len(found) != 1 {
		t.Errorf("SearchEntities = %d, err=%v, want 1", len(found), err)
	}
}

func TestCreateEntityOnceReusesOrigin(t *testing.T) {
	es := store.NewEntityStore(setupTestBase(t))
	ctx := context.Background()

	first, created, err := es.CreateEntityOnce(ctx, "clarification:q1", models.EntityPerson, "Alex", true, 0.9)
	if err != nil || !created {
		t.Fatalf("CreateEntityOnce created=%v err=%v", created, err)
	}

	again, created, err := es.CreateEntityOnce(ctx, "clarification:q1", models.EntityPerson, "Alex", true, 0.9)
	if err != nil || created {
		t.Fatalf("repeat CreateEntityOnce created=%v err=%v, want reuse", created, err)
	}

	if again.ID != first.ID {
		t.Errorf("repeat returned %s, want %s", again.ID, first.ID)
	}
}
