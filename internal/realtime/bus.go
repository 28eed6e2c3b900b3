package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	maxResubscribes    = 6
	resubscribeBase    = 500 * time.Millisecond
	resubscribeCeiling = 8 * time.Second
)

// Bus is the realtime channel transport: one redis pub/sub channel per
// session id carrying both broadcast events and row-change notifications.
// It is constructed explicitly and has a Start/Stop lifecycle so tests and
// callers own its state.
type Bus struct {
	log    *slog.Logger
	rdb    *goredis.Client
	prefix string
}

func NewBus(addr, channelPrefix string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	return &Bus{
		log:    logger,
		rdb:    rdb,
		prefix: channelPrefix,
	}
}

func (b *Bus) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (b *Bus) Stop() error {
	return b.rdb.Close()
}

func (b *Bus) channel(sessionID string) string {
	return b.prefix + ":session:" + sessionID
}

func (b *Bus) publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(msg.SessionID), raw).Err()
}

// Broadcast publishes an ephemeral event to every subscriber of a session.
func (b *Bus) Broadcast(ctx context.Context, sessionID, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.publish(ctx, Message{
		Kind:      kindBroadcast,
		Event:     event,
		SessionID: sessionID,
		Payload:   raw,
		SentAt:    time.Now().UTC(),
	})
}

// RowChanged publishes a durable-mutation notification. The store gateway
// calls this after each committed write.
func (b *Bus) RowChanged(ctx context.Context, sessionID, table, op string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.publish(ctx, Message{
		Kind:      kindRowChange,
		Table:     table,
		Op:        op,
		SessionID: sessionID,
		Payload:   raw,
		SentAt:    time.Now().UTC(),
	})
}

// Subscribe opens one underlying connection for the session channel and
// starts dispatching after the subscribe handshake confirms the channel is
// active. The returned cancel func tears the subscription down. On channel
// failure the bus resubscribes with growing backoff up to maxResubscribes,
// then reports StatusDegraded so the caller's polling fallback takes over.
func (b *Bus) Subscribe(ctx context.Context, sessionID string, h Handlers) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub, err := b.open(subCtx, sessionID)
	if err != nil {
		cancel()
		return nil, err
	}
	b.setStatus(h, StatusConnected)
	go b.pump(subCtx, sessionID, sub, h)
	return cancel, nil
}

func (b *Bus) open(ctx context.Context, sessionID string) (*goredis.PubSub, error) {
	sub := b.rdb.Subscribe(ctx, b.channel(sessionID))
	// Receive blocks until the subscription is confirmed active.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	return sub, nil
}

// resubscribeBackoff budgets consecutive reconnect attempts. The budget is
// per outage: a successful reconnect resets it, so a long-lived subscription
// with occasional drops never degrades from accumulated history.
type resubscribeBackoff struct {
	failures int
}

// next returns the delay before the upcoming attempt, or false once the
// attempt budget is exhausted.
func (r *resubscribeBackoff) next() (time.Duration, bool) {
	r.failures++
	if r.failures > maxResubscribes {
		return 0, false
	}
	delay := resubscribeBase << (r.failures - 1)
	if delay > resubscribeCeiling {
		delay = resubscribeCeiling
	}
	return delay, true
}

func (r *resubscribeBackoff) reset() {
	r.failures = 0
}

func (b *Bus) pump(ctx context.Context, sessionID string, sub *goredis.PubSub, h Handlers) {
	var backoff resubscribeBackoff
	for {
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					break recv
				}
				b.dispatch(sessionID, []byte(m.Payload), h)
			}
		}

		_ = sub.Close()
		for {
			delay, ok := backoff.next()
			if !ok {
				b.log.Error("subscription degraded", "session_id", sessionID, "failures", maxResubscribes)
				b.setStatus(h, StatusDegraded)
				return
			}
			b.setStatus(h, StatusReconnecting)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			next, err := b.open(ctx, sessionID)
			if err != nil {
				b.log.Warn("resubscribe failed", "session_id", sessionID, "attempt", backoff.failures, "err", err)
				continue
			}
			sub = next
			backoff.reset()
			b.setStatus(h, StatusConnected)
			break
		}
	}
}

func (b *Bus) dispatch(sessionID string, raw []byte, h Handlers) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panic", "session_id", sessionID, "panic", r)
		}
	}()

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.log.Warn("bad channel payload", "session_id", sessionID, "err", err)
		return
	}
	switch msg.Kind {
	case kindRowChange:
		if h.OnRowChange != nil {
			h.OnRowChange(RowChange{
				Table:     msg.Table,
				Op:        msg.Op,
				SessionID: msg.SessionID,
				Payload:   msg.Payload,
			})
		}
	case kindBroadcast:
		if h.OnBroadcast != nil {
			h.OnBroadcast(BroadcastMsg{
				Event:     msg.Event,
				SessionID: msg.SessionID,
				Payload:   msg.Payload,
			})
		}
	default:
		b.log.Warn("unknown message kind", "kind", string(msg.Kind))
	}
}

func (b *Bus) setStatus(h Handlers, s Status) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}
