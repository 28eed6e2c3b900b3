package store

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"simboard/internal/game"
)

// classify maps driver-level failures onto the taxonomy in the game
// package. Anything unrecognized passes through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return game.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return game.ErrTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return game.ErrConflict
		case "42501", "28000":
			return game.ErrPermissionDenied
		}
	}
	return err
}

// isConnectionClass reports whether err is a network/timeout style failure,
// the only kind that counts toward the circuit breaker and is worth
// retrying. Data errors (not found, conflict) never trip the breaker.
func isConnectionClass(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, game.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
