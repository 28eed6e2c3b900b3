package store

import (
	"context"
	"time"

	"simboard/internal/game"
	"simboard/internal/realtime"
)

func (g *Gateway) KPIRoundForTeam(ctx context.Context, sessionID, teamID string, round int) (game.KPIRound, error) {
	var k game.KPIRound
	err := g.call(ctx, callOpts{name: "kpis.get"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			SELECT session_id, team_id, round, capacity, orders, cost, asp,
			       revenue, net_income, net_margin_bps, updated_at
			FROM sim.team_round_data
			WHERE session_id = $1 AND team_id = $2 AND round = $3
		`, sessionID, teamID, round).Scan(
			&k.SessionID, &k.TeamID, &k.Round, &k.Capacity, &k.Orders, &k.Cost, &k.ASP,
			&k.Revenue, &k.NetIncome, &k.NetMarginBps, &k.UpdatedAt)
	})
	return k, err
}

func (g *Gateway) CreateKPIRound(ctx context.Context, k game.KPIRound) error {
	err := g.call(ctx, callOpts{name: "kpis.create"}, func(ctx context.Context) error {
		_, err := g.pool.Exec(ctx, `
			INSERT INTO sim.team_round_data
			    (session_id, team_id, round, capacity, orders, cost, asp, revenue, net_income, net_margin_bps)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, k.SessionID, k.TeamID, k.Round, k.Capacity, k.Orders, k.Cost, k.ASP,
			k.Revenue, k.NetIncome, k.NetMarginBps)
		return err
	})
	if err != nil {
		return err
	}
	g.emit(ctx, k.SessionID, realtime.TableRoundData, realtime.OpInsert, k)
	return nil
}

func (g *Gateway) UpdateKPIRound(ctx context.Context, k game.KPIRound) error {
	err := g.call(ctx, callOpts{name: "kpis.update"}, func(ctx context.Context) error {
		cmd, err := g.pool.Exec(ctx, `
			UPDATE sim.team_round_data
			SET capacity = $1, orders = $2, cost = $3, asp = $4,
			    revenue = $5, net_income = $6, net_margin_bps = $7, updated_at = now()
			WHERE session_id = $8 AND team_id = $9 AND round = $10
		`, k.Capacity, k.Orders, k.Cost, k.ASP, k.Revenue, k.NetIncome, k.NetMarginBps,
			k.SessionID, k.TeamID, k.Round)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return game.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.emit(ctx, k.SessionID, realtime.TableRoundData, realtime.OpUpdate, k)
	return nil
}

func (g *Gateway) BulkUpsertKPIRounds(ctx context.Context, rounds []game.KPIRound) error {
	if len(rounds) == 0 {
		return nil
	}
	err := g.call(ctx, callOpts{name: "kpis.bulk_upsert", timeout: 10 * time.Second}, func(ctx context.Context) error {
		tx, err := g.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)
		for _, k := range rounds {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sim.team_round_data
				    (session_id, team_id, round, capacity, orders, cost, asp, revenue, net_income, net_margin_bps)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (session_id, team_id, round)
				DO UPDATE SET capacity = EXCLUDED.capacity, orders = EXCLUDED.orders,
				              cost = EXCLUDED.cost, asp = EXCLUDED.asp,
				              revenue = EXCLUDED.revenue, net_income = EXCLUDED.net_income,
				              net_margin_bps = EXCLUDED.net_margin_bps, updated_at = now()
			`, k.SessionID, k.TeamID, k.Round, k.Capacity, k.Orders, k.Cost, k.ASP,
				k.Revenue, k.NetIncome, k.NetMarginBps); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}
	for _, k := range rounds {
		g.emit(ctx, k.SessionID, realtime.TableRoundData, realtime.OpUpdate, k)
	}
	return nil
}

func (g *Gateway) Leaderboard(ctx context.Context, sessionID string) ([]game.LeaderboardRow, error) {
	var out []game.LeaderboardRow
	err := g.call(ctx, callOpts{name: "kpis.leaderboard"}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, `
			SELECT t.id, t.name, COALESCE(SUM(rd.net_income), 0) AS total
			FROM sim.teams t
			LEFT JOIN sim.team_round_data rd
			  ON rd.session_id = t.session_id AND rd.team_id = t.id
			WHERE t.session_id = $1
			GROUP BY t.id, t.name
			ORDER BY total DESC, t.name
		`, sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		rank := 1
		for rows.Next() {
			var r game.LeaderboardRow
			if err := rows.Scan(&r.TeamID, &r.TeamName, &r.NetIncomeSum); err != nil {
				return err
			}
			r.Rank = rank
			rank++
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
