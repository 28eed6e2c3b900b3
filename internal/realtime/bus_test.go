package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func testBus() *Bus {
	// No connection is opened until Start; dispatch never touches redis.
	return NewBus("localhost:6379", "test", testLog)
}

func TestChannelNaming(t *testing.T) {
	b := testBus()
	if got := b.channel("abc"); got != "test:session:abc" {
		t.Fatalf("channel = %q", got)
	}
}

func TestDispatchRowChange(t *testing.T) {
	b := testBus()
	msg := Message{
		Kind:      kindRowChange,
		Table:     TableSessions,
		Op:        OpUpdate,
		SessionID: "s1",
		Payload:   json.RawMessage(`{"current_slide":7}`),
		SentAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got RowChange
	b.dispatch("s1", raw, Handlers{OnRowChange: func(rc RowChange) { got = rc }})
	if got.Table != TableSessions || got.Op != OpUpdate || got.SessionID != "s1" {
		t.Fatalf("row change = %+v", got)
	}
	if string(got.Payload) != `{"current_slide":7}` {
		t.Fatalf("payload = %s", got.Payload)
	}
}

func TestDispatchBroadcast(t *testing.T) {
	b := testBus()
	msg := Message{
		Kind:      kindBroadcast,
		Event:     EventDiceRolled,
		SessionID: "s1",
		Payload:   json.RawMessage(`{"total":7}`),
	}
	raw, _ := json.Marshal(msg)

	var got BroadcastMsg
	b.dispatch("s1", raw, Handlers{OnBroadcast: func(m BroadcastMsg) { got = m }})
	if got.Event != EventDiceRolled || got.SessionID != "s1" {
		t.Fatalf("broadcast = %+v", got)
	}
}

func TestDispatchSkipsNilHandlers(t *testing.T) {
	b := testBus()
	raw, _ := json.Marshal(Message{Kind: kindBroadcast, Event: EventKPIUpdated, SessionID: "s1"})
	// Only a row-change handler registered; must not panic or misroute.
	b.dispatch("s1", raw, Handlers{OnRowChange: func(RowChange) { t.Fatal("broadcast routed to row-change handler") }})
}

func TestDispatchToleratesBadPayloadAndPanics(t *testing.T) {
	b := testBus()

	b.dispatch("s1", []byte(`{not json`), Handlers{
		OnRowChange: func(RowChange) { t.Fatal("handler called for malformed payload") },
	})

	raw, _ := json.Marshal(Message{Kind: kindRowChange, Table: TableDecisions, Op: OpInsert, SessionID: "s1"})
	b.dispatch("s1", raw, Handlers{
		OnRowChange: func(RowChange) { panic("listener bug") },
	})
	// Reaching here means the panic was contained.
}

func TestDispatchUnknownKind(t *testing.T) {
	b := testBus()
	b.dispatch("s1", []byte(`{"kind":"telemetry","session_id":"s1"}`), Handlers{
		OnRowChange: func(RowChange) { t.Fatal("unknown kind dispatched") },
		OnBroadcast: func(BroadcastMsg) { t.Fatal("unknown kind dispatched") },
	})
}

func TestResubscribeBackoffGrowsAndExhausts(t *testing.T) {
	var b resubscribeBackoff
	wantDelays := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped at the ceiling
	}
	for i, want := range wantDelays {
		delay, ok := b.next()
		if !ok {
			t.Fatalf("attempt %d: budget exhausted early", i+1)
		}
		if delay != want {
			t.Fatalf("attempt %d: delay = %v, want %v", i+1, delay, want)
		}
	}
	if _, ok := b.next(); ok {
		t.Fatal("budget not exhausted after the last attempt")
	}
}

func TestResubscribeBackoffResetRestoresBudget(t *testing.T) {
	var b resubscribeBackoff
	for i := 0; i < maxResubscribes; i++ {
		if _, ok := b.next(); !ok {
			t.Fatalf("attempt %d: budget exhausted early", i+1)
		}
	}

	// A successful reconnect resets the budget; the next outage gets the
	// full ladder again instead of degrading immediately.
	b.reset()
	delay, ok := b.next()
	if !ok {
		t.Fatal("reset did not restore the attempt budget")
	}
	if delay != 500*time.Millisecond {
		t.Fatalf("delay after reset = %v, want the ladder base", delay)
	}
}

func TestMessageEnvelopeRoundTrip(t *testing.T) {
	in := Message{
		Kind:      kindRowChange,
		Table:     TableRoundData,
		Op:        OpDelete,
		SessionID: "s1",
		Payload:   json.RawMessage(`{"round":2}`),
		SentAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Message
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Kind != in.Kind || out.Table != in.Table || out.Op != in.Op || !out.SentAt.Equal(in.SentAt) {
		t.Fatalf("round trip changed the envelope: %+v", out)
	}
}
