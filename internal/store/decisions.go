package store

import (
	"context"

	"simboard/internal/game"
	"simboard/internal/realtime"
)

// UpsertDecision settles a regular decision. Keyed on (session, team,
// phase): a re-submission before the host resets overwrites in place.
func (g *Gateway) UpsertDecision(ctx context.Context, d game.Decision) error {
	raw, err := game.MarshalPayload(d.Payload)
	if err != nil {
		return err
	}
	var inserted bool
	err = g.call(ctx, callOpts{name: "decisions.upsert"}, func(ctx context.Context) error {
		// xmax = 0 distinguishes a fresh insert from a conflict-update.
		return g.pool.QueryRow(ctx, `
			INSERT INTO sim.team_decisions (session_id, team_id, phase_id, payload, immediate_purchase, submitted_at)
			VALUES ($1, $2, $3, $4, false, now())
			ON CONFLICT (session_id, team_id, phase_id)
			DO UPDATE SET payload = EXCLUDED.payload, submitted_at = now()
			RETURNING (xmax = 0)
		`, d.SessionID, d.TeamID, d.PhaseID, raw).Scan(&inserted)
	})
	if err != nil {
		return err
	}
	op := realtime.OpUpdate
	if inserted {
		op = realtime.OpInsert
	}
	g.emit(ctx, d.SessionID, realtime.TableDecisions, op, d)
	return nil
}

// InsertImmediatePurchase records a binding purchase under its derived
// phase id. A repeat insert for the same purchase is a benign no-op.
func (g *Gateway) InsertImmediatePurchase(ctx context.Context, d game.Decision) error {
	raw, err := game.MarshalPayload(d.Payload)
	if err != nil {
		return err
	}
	var inserted int64
	err = g.call(ctx, callOpts{name: "decisions.immediate"}, func(ctx context.Context) error {
		cmd, err := g.pool.Exec(ctx, `
			INSERT INTO sim.team_decisions (session_id, team_id, phase_id, payload, immediate_purchase, submitted_at)
			VALUES ($1, $2, $3, $4, true, now())
			ON CONFLICT (session_id, team_id, phase_id) DO NOTHING
		`, d.SessionID, d.TeamID, d.PhaseID, raw)
		if err != nil {
			return err
		}
		inserted = cmd.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if inserted > 0 {
		g.emit(ctx, d.SessionID, realtime.TableDecisions, realtime.OpInsert, d)
	}
	return nil
}

func (g *Gateway) DecisionForTeamPhase(ctx context.Context, sessionID, teamID, phaseID string) (game.Decision, error) {
	var (
		d   game.Decision
		raw []byte
	)
	err := g.call(ctx, callOpts{name: "decisions.get"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			SELECT session_id, team_id, phase_id, payload, immediate_purchase, submitted_at
			FROM sim.team_decisions
			WHERE session_id = $1 AND team_id = $2 AND phase_id = $3
		`, sessionID, teamID, phaseID).Scan(&d.SessionID, &d.TeamID, &d.PhaseID, &raw, &d.ImmediatePurchase, &d.SubmittedAt)
	})
	if err != nil {
		return game.Decision{}, err
	}
	if d.Payload, err = game.UnmarshalPayload(raw); err != nil {
		return game.Decision{}, err
	}
	return d, nil
}

func (g *Gateway) DecisionsForPhase(ctx context.Context, sessionID, phaseID string) ([]game.Decision, error) {
	return g.queryDecisions(ctx, "decisions.for_phase", `
		SELECT session_id, team_id, phase_id, payload, immediate_purchase, submitted_at
		FROM sim.team_decisions
		WHERE session_id = $1 AND phase_id = $2
		ORDER BY submitted_at
	`, sessionID, phaseID)
}

func (g *Gateway) ImmediatePurchases(ctx context.Context, sessionID, teamID string) ([]game.Decision, error) {
	return g.queryDecisions(ctx, "decisions.immediate_purchases", `
		SELECT session_id, team_id, phase_id, payload, immediate_purchase, submitted_at
		FROM sim.team_decisions
		WHERE session_id = $1 AND team_id = $2 AND immediate_purchase
		ORDER BY submitted_at
	`, sessionID, teamID)
}

func (g *Gateway) queryDecisions(ctx context.Context, name, sql string, args ...any) ([]game.Decision, error) {
	var out []game.Decision
	err := g.call(ctx, callOpts{name: name}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var (
				d   game.Decision
				raw []byte
			)
			if err := rows.Scan(&d.SessionID, &d.TeamID, &d.PhaseID, &raw, &d.ImmediatePurchase, &d.SubmittedAt); err != nil {
				return err
			}
			if d.Payload, err = game.UnmarshalPayload(raw); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteRegularDecision backs the host's reset. Immediate purchases are
// standing commitments and survive the predicate.
func (g *Gateway) DeleteRegularDecision(ctx context.Context, sessionID, teamID, phaseID string) error {
	var deleted int64
	err := g.call(ctx, callOpts{name: "decisions.delete"}, func(ctx context.Context) error {
		cmd, err := g.pool.Exec(ctx, `
			DELETE FROM sim.team_decisions
			WHERE session_id = $1 AND team_id = $2 AND phase_id = $3
			  AND NOT immediate_purchase
		`, sessionID, teamID, phaseID)
		if err != nil {
			return err
		}
		deleted = cmd.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if deleted > 0 {
		g.emit(ctx, sessionID, realtime.TableDecisions, realtime.OpDelete, map[string]string{
			"session_id": sessionID,
			"team_id":    teamID,
			"phase_id":   phaseID,
		})
	}
	return nil
}
