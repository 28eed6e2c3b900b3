package store

import (
	"context"
	"encoding/json"

	"simboard/internal/content"
	"simboard/internal/game"
)

// SaveDoubleDownResult persists the canonical roll. Upsert on (session,
// investment): a retried write updates the row instead of duplicating, so
// exactly one outcome ever exists per key.
func (g *Gateway) SaveDoubleDownResult(ctx context.Context, r game.DoubleDownResult) error {
	deltas, err := json.Marshal(r.Deltas)
	if err != nil {
		return err
	}
	return g.call(ctx, callOpts{name: "double_down.save"}, func(ctx context.Context) error {
		_, err := g.pool.Exec(ctx, `
			INSERT INTO sim.double_down_results
			    (session_id, investment_id, die1, die2, total, boost_percent, team_names, deltas, rolled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (session_id, investment_id)
			DO UPDATE SET die1 = EXCLUDED.die1, die2 = EXCLUDED.die2, total = EXCLUDED.total,
			              boost_percent = EXCLUDED.boost_percent, team_names = EXCLUDED.team_names,
			              deltas = EXCLUDED.deltas
		`, r.SessionID, r.InvestmentID, r.Die1, r.Die2, r.Total, r.BoostPercent, r.TeamNames, deltas)
		return err
	})
}

func (g *Gateway) DoubleDownResultFor(ctx context.Context, sessionID, investmentID string) (game.DoubleDownResult, error) {
	var (
		r   game.DoubleDownResult
		raw []byte
	)
	err := g.call(ctx, callOpts{name: "double_down.get"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			SELECT session_id, investment_id, die1, die2, total, boost_percent, team_names, deltas, rolled_at
			FROM sim.double_down_results
			WHERE session_id = $1 AND investment_id = $2
		`, sessionID, investmentID).Scan(
			&r.SessionID, &r.InvestmentID, &r.Die1, &r.Die2, &r.Total,
			&r.BoostPercent, &r.TeamNames, &raw, &r.RolledAt)
	})
	if err != nil {
		return game.DoubleDownResult{}, err
	}
	if err := json.Unmarshal(raw, &r.Deltas); err != nil {
		return game.DoubleDownResult{}, err
	}
	return r, nil
}

// TeamsForInvestment lists the teams whose settled double-down decision
// targets the given investment.
func (g *Gateway) TeamsForInvestment(ctx context.Context, sessionID, investmentID string) ([]game.TeamPick, error) {
	var out []game.TeamPick
	err := g.call(ctx, callOpts{name: "double_down.teams"}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, `
			SELECT t.id, t.name, d.payload->'data'->>'sacrifice_id'
			FROM sim.team_decisions d
			JOIN sim.teams t ON t.id = d.team_id AND t.session_id = d.session_id
			WHERE d.session_id = $1
			  AND d.phase_id = $2
			  AND d.payload->'data'->>'target_id' = $3
			ORDER BY t.name
		`, sessionID, content.DoubleDownPhaseID, investmentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var p game.TeamPick
			if err := rows.Scan(&p.TeamID, &p.TeamName, &p.SacrificeID); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}
