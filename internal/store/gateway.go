package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyFunc receives a row-change notification after a successful durable
// mutation. The API process wires this to the realtime bus so connected
// clients see change-data-capture style events without polling.
type NotifyFunc func(ctx context.Context, sessionID, table, op string, payload any)

// Gateway is the typed repository layer over the six record families. Every
// operation goes through the retry policy in retry.go; the breaker instance
// is injected so tests get fresh state.
type Gateway struct {
	pool    *pgxpool.Pool
	log     *slog.Logger
	breaker *Breaker
	notify  NotifyFunc
}

func New(pool *pgxpool.Pool, logger *slog.Logger, breaker *Breaker) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = NewBreaker(logger)
	}
	return &Gateway{
		pool:    pool,
		log:     logger,
		breaker: breaker,
	}
}

// SetNotifier attaches the row-change emitter. Must be called before the
// gateway starts serving writes.
func (g *Gateway) SetNotifier(fn NotifyFunc) {
	g.notify = fn
}

func (g *Gateway) emit(ctx context.Context, sessionID, table, op string, payload any) {
	if g.notify == nil {
		return
	}
	g.notify(ctx, sessionID, table, op, payload)
}
