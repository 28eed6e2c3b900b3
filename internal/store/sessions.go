package store

import (
	"context"
	"time"

	"simboard/internal/game"
	"simboard/internal/realtime"
)

func (g *Gateway) CreateSession(ctx context.Context, s game.Session) (game.Session, error) {
	err := g.call(ctx, callOpts{name: "sessions.create"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			INSERT INTO sim.sessions (id, host_id, status, current_slide)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`, s.ID, s.HostID, s.Status, s.CurrentSlide).Scan(&s.CreatedAt, &s.UpdatedAt)
	})
	return s, err
}

// Session verifies and loads a session row. Tagged critical: it backs
// login and every request guard, so it bypasses the breaker.
func (g *Gateway) Session(ctx context.Context, id string) (game.Session, error) {
	var s game.Session
	err := g.call(ctx, callOpts{name: "sessions.get", critical: true}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			SELECT id, host_id, status, current_slide, created_at, updated_at
			FROM sim.sessions
			WHERE id = $1
		`, id).Scan(&s.ID, &s.HostID, &s.Status, &s.CurrentSlide, &s.CreatedAt, &s.UpdatedAt)
	})
	return s, err
}

func (g *Gateway) SessionsByHost(ctx context.Context, hostID string) ([]game.Session, error) {
	var out []game.Session
	err := g.call(ctx, callOpts{name: "sessions.by_host"}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, `
			SELECT id, host_id, status, current_slide, created_at, updated_at
			FROM sim.sessions
			WHERE host_id = $1
			ORDER BY created_at DESC
		`, hostID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var s game.Session
			if err := rows.Scan(&s.ID, &s.HostID, &s.Status, &s.CurrentSlide, &s.CreatedAt, &s.UpdatedAt); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// UpdateSessionSlide moves the host's slide pointer. The row carries the
// full new state so subscribers can apply it idempotently in any order.
func (g *Gateway) UpdateSessionSlide(ctx context.Context, sessionID, hostID string, slide int) (game.Session, error) {
	var s game.Session
	err := g.call(ctx, callOpts{name: "sessions.update_slide"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			UPDATE sim.sessions
			SET current_slide = $1, updated_at = now()
			WHERE id = $2 AND host_id = $3
			RETURNING id, host_id, status, current_slide, created_at, updated_at
		`, slide, sessionID, hostID).Scan(&s.ID, &s.HostID, &s.Status, &s.CurrentSlide, &s.CreatedAt, &s.UpdatedAt)
	})
	if err != nil {
		return game.Session{}, err
	}
	g.emit(ctx, sessionID, realtime.TableSessions, realtime.OpUpdate, s)
	return s, nil
}

func (g *Gateway) UpdateSessionStatus(ctx context.Context, sessionID, hostID string, status game.SessionStatus) (game.Session, error) {
	var s game.Session
	err := g.call(ctx, callOpts{name: "sessions.update_status"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			UPDATE sim.sessions
			SET status = $1, updated_at = now()
			WHERE id = $2 AND host_id = $3
			RETURNING id, host_id, status, current_slide, created_at, updated_at
		`, status, sessionID, hostID).Scan(&s.ID, &s.HostID, &s.Status, &s.CurrentSlide, &s.CreatedAt, &s.UpdatedAt)
	})
	if err != nil {
		return game.Session{}, err
	}
	g.emit(ctx, sessionID, realtime.TableSessions, realtime.OpUpdate, s)
	return s, nil
}

// DeleteSession removes a session and everything hanging off it.
func (g *Gateway) DeleteSession(ctx context.Context, sessionID, hostID string) error {
	return g.call(ctx, callOpts{name: "sessions.delete", timeout: 10 * time.Second}, func(ctx context.Context) error {
		tx, err := g.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var owner string
		if err := tx.QueryRow(ctx, `SELECT host_id FROM sim.sessions WHERE id = $1`, sessionID).Scan(&owner); err != nil {
			return err
		}
		if owner != hostID {
			return game.ErrPermissionDenied
		}

		for _, stmt := range []string{
			`DELETE FROM sim.double_down_results WHERE session_id = $1`,
			`DELETE FROM sim.consequence_applications WHERE session_id = $1`,
			`DELETE FROM sim.payoff_applications WHERE session_id = $1`,
			`DELETE FROM sim.kpi_adjustments WHERE session_id = $1`,
			`DELETE FROM sim.team_round_data WHERE session_id = $1`,
			`DELETE FROM sim.team_decisions WHERE session_id = $1`,
			`DELETE FROM sim.teams WHERE session_id = $1`,
			`DELETE FROM sim.sessions WHERE id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, sessionID); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
}
