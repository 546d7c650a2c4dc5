package db

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

type recordedEvent struct {
	typ  string
	data json.RawMessage
}

type fakeBroadcaster struct {
	events []recordedEvent
}

func (f *fakeBroadcaster) BroadcastEvent(eventType string, data json.RawMessage) {
	f.events = append(f.events, recordedEvent{typ: eventType, data: data})
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestForward_UsesPayloadType(t *testing.T) {
	hub := &fakeBroadcaster{}
	b := NewNotifyBridge(quietLogger(), nil, hub)

	payload := `{"type":"block.created","id":"b1","author_type":"user"}`
	b.forward(&pgconn.Notification{Channel: ChangesChannel, Payload: payload})

	if len(hub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(hub.events))
	}

	if hub.events[0].typ != "block.created" {
		t.Errorf("type = %q", hub.events[0].typ)
	}

	if string(hub.events[0].data) != payload {
		t.Errorf("data = %s, want raw payload", hub.events[0].data)
	}
}

func TestForward_DropsUntypedPayloads(t *testing.T) {
	hub := &fakeBroadcaster{}
	b := NewNotifyBridge(quietLogger(), nil, hub)

	for _, payload := range []string{`{"id":"b1"}`, `not json`, `{"type":""}`} {
		b.forward(&pgconn.Notification{Channel: ChangesChannel, Payload: payload})
	}

	if len(hub.events) != 0 {
		t.Errorf("events = %v, want none", hub.events)
	}
}

func TestResyncPayload_IsTyped(t *testing.T) {
	var head struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(resyncPayload, &head); err != nil {
		t.Fatalf("resync payload is not JSON: %v", err)
	}

	if head.Type != ResyncEvent {
		t.Errorf("type = %q, want %q", head.Type, ResyncEvent)
	}
}

func TestJittered_StaysWithinQuarter(t *testing.T) {
	for range 100 {
		got := jittered(8 * time.Second)
		if got < 6*time.Second || got > 10*time.Second {
			t.Fatalf("jittered(8s) = %v, outside ±25%%", got)
		}
	}
}
