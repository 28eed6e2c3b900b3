package store

import (
	"context"

	"simboard/internal/game"
)

// UpsertAdjustment schedules a carry-forward KPI effect. The six-column
// uniqueness key lets the same adjustment be re-scheduled without
// duplication.
func (g *Gateway) UpsertAdjustment(ctx context.Context, a game.Adjustment) error {
	return g.call(ctx, callOpts{name: "adjustments.upsert"}, func(ctx context.Context) error {
		_, err := g.pool.Exec(ctx, `
			INSERT INTO sim.kpi_adjustments
			    (session_id, team_id, target_round, kpi, change_value, challenge_id, option_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, team_id, target_round, kpi, challenge_id, option_id)
			DO UPDATE SET change_value = EXCLUDED.change_value
		`, a.SessionID, a.TeamID, a.TargetRound, a.KPI, a.Change, a.ChallengeID, a.OptionID)
		return err
	})
}

func (g *Gateway) AdjustmentsForRound(ctx context.Context, sessionID, teamID string, round int) ([]game.Adjustment, error) {
	return g.queryAdjustments(ctx, "adjustments.for_round", `
		SELECT session_id, team_id, target_round, kpi, change_value, challenge_id, option_id
		FROM sim.kpi_adjustments
		WHERE session_id = $1 AND team_id = $2 AND target_round = $3
	`, sessionID, teamID, round)
}

func (g *Gateway) AdjustmentsBySession(ctx context.Context, sessionID string) ([]game.Adjustment, error) {
	return g.queryAdjustments(ctx, "adjustments.by_session", `
		SELECT session_id, team_id, target_round, kpi, change_value, challenge_id, option_id
		FROM sim.kpi_adjustments
		WHERE session_id = $1
		ORDER BY target_round
	`, sessionID)
}

func (g *Gateway) queryAdjustments(ctx context.Context, name, sql string, args ...any) ([]game.Adjustment, error) {
	var out []game.Adjustment
	err := g.call(ctx, callOpts{name: name}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var a game.Adjustment
			if err := rows.Scan(&a.SessionID, &a.TeamID, &a.TargetRound, &a.KPI, &a.Change, &a.ChallengeID, &a.OptionID); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}
