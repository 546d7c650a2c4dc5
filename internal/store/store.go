// Package store provides focused, single-concern data access stores for the
// mua knowledge store.
//
// Each store owns one domain (blocks, artifacts, entities, links,
// clarifications, processing state, embeddings, search) and embeds shared
// helpers via the Base struct. Stores never import each other; shared logic
// lives in this file or in helpers.go and scan.go.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction.
func (b *Base) beginReadTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	return tx, nil
}

// notify publishes an event on the mua_changes channel (best-effort, post-commit).
func (b *Base) notify(eventType string, fields map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["type"] = eventType

	data, err := json.Marshal(payload)
	if err != nil {
		b.Log.WithError(err).WithField("event", eventType).Warn("failed to marshal notification")
		return
	}

	if _, err := b.Pool.Exec(ctx, "SELECT pg_notify($1, $2)", db.ChangesChannel, string(data)); err != nil {
		b.Log.WithError(err).WithField("event", eventType).Warn("failed to send notification")
	}
}

// translateErr maps driver errors onto model sentinels.
func translateErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return models.ErrDuplicateKey
		case "22P02": // invalid_text_representation, e.g. malformed uuid
			return models.ErrNotFound
		}
	}

	return err
}

// validID reports whether id is a well-formed UUID. Lookups by malformed ids
// short-circuit to ErrNotFound.
func validID(id string) bool {
	_, err := uuid.Parse(id)

	return err == nil
}
