package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/metrics"
)

// ChangesChannel is the LISTEN/NOTIFY channel stores publish change events on.
const ChangesChannel = "mua_changes"

// ResyncEvent is broadcast after the listener reconnects. Notifications sent
// while it was down are lost, so clients should refetch.
const ResyncEvent = "stream.resync"

const (
	minRetry       = 1 * time.Second
	maxRetry       = 30 * time.Second
	waitSliceLimit = 2 * time.Minute
)

// Broadcaster fans events out to connected clients.
type Broadcaster interface {
	BroadcastEvent(eventType string, data json.RawMessage)
}

// NotifyBridge forwards change notifications to websocket clients. Stores
// publish after commit, so events from CLI batch runs reach clients of a
// separately running server.
type NotifyBridge struct {
	log  *logrus.Logger
	pool *dbpool.Pool
	hub  Broadcaster
}

// NewNotifyBridge creates a NotifyBridge.
func NewNotifyBridge(log *logrus.Logger, pool *dbpool.Pool, hub Broadcaster) *NotifyBridge {
	return &NotifyBridge{log: log, pool: pool, hub: hub}
}

// Start checks the database is reachable and runs the listener in the
// background until ctx is cancelled. Later connection failures are retried.
func (b *NotifyBridge) Start(ctx context.Context) error {
	if err := b.pool.Ping(ctx); err != nil {
		return fmt.Errorf("starting notify bridge: %w", err)
	}

	go b.run(ctx)

	return nil
}

func (b *NotifyBridge) run(ctx context.Context) {
	wait := minRetry

	for session := 0; ctx.Err() == nil; session++ {
		err := b.listen(ctx, session > 0)
		if err == nil || ctx.Err() != nil {
			return
		}

		metrics.NotifyReconnects.Inc()
		b.log.WithError(err).WithField("retry_in", wait).Warn("change listener lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		wait = jittered(min(wait*2, maxRetry))
	}
}

// listen holds one connection in LISTEN until it fails or ctx ends.
func (b *NotifyBridge) listen(ctx context.Context, resumed bool) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangesChannel}.Sanitize()); err != nil {
		return fmt.Errorf("subscribing to %s: %w", ChangesChannel, err)
	}

	b.log.WithField("channel", ChangesChannel).Info("listening for changes")

	if resumed {
		b.hub.BroadcastEvent(ResyncEvent, resyncPayload)
	}

	pg := conn.Conn()

	for {
		// Bounded waits let a dead socket surface as an error.
		if err := pg.PgConn().Conn().SetReadDeadline(time.Now().Add(waitSliceLimit)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		n, err := pg.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		b.forward(n)
	}
}

var resyncPayload = json.RawMessage(`{"type":"` + ResyncEvent + `","reason":"listener reconnected"}`)

// forward relays one payload, using its "type" field as the event type.
func (b *NotifyBridge) forward(n *pgconn.Notification) {
	var head struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal([]byte(n.Payload), &head); err != nil || head.Type == "" {
		b.log.WithField("pid", n.PID).Warn("dropping change notification without type")
		return
	}

	b.log.WithField("type", head.Type).Debug("change notification")
	b.hub.BroadcastEvent(head.Type, json.RawMessage(n.Payload))
}

// jittered spreads d by ±25% so restarted listeners do not reconnect in step.
func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5)) //nolint:gosec // jitter only
}
