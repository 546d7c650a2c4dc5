package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/db/migrations"
	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var sharedEnv *testEnv

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if sharedEnv != nil {
		return sharedEnv
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL, 4)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	sharedEnv = &testEnv{
		pool: pool,
		log:  log,
	}

	return sharedEnv
}

// setupTestBase returns a Base over an emptied schema. Tests in this package
// share one database and must not run in parallel.
func setupTestBase(t *testing.T) store.Base {
	t.Helper()

	env := getTestEnv(t)

	truncate := func() {
		//nolint:errcheck // best-effort cleanup
		env.pool.Exec(context.Background(),
			`TRUNCATE user_block_versions, user_blocks, mua_blocks, artifacts, entities, links,
			 clarification_items, processing_state, block_embeddings, embedding_profiles`)
	}

	truncate()
	t.Cleanup(truncate)

	return store.Base{Pool: env.pool, Log: env.log}
}
