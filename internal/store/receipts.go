package store

import (
	"context"
	"fmt"
	"time"

	"simboard/internal/game"
	"simboard/internal/realtime"
)

func receiptTable(kind game.ReceiptKind) (string, error) {
	switch kind {
	case game.ReceiptConsequence:
		return "sim.consequence_applications", nil
	case game.ReceiptPayoff:
		return "sim.payoff_applications", nil
	default:
		return "", fmt.Errorf("unknown receipt kind %q", kind)
	}
}

func (g *Gateway) HasBeenApplied(ctx context.Context, kind game.ReceiptKind, sessionID, teamID, sourceID, optionID string) (bool, error) {
	table, err := receiptTable(kind)
	if err != nil {
		return false, err
	}
	var applied bool
	err = g.call(ctx, callOpts{name: "receipts.has_been_applied"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM `+table+`
				WHERE session_id = $1 AND team_id = $2 AND source_id = $3 AND option_id = $4
			)
		`, sessionID, teamID, sourceID, optionID).Scan(&applied)
	})
	return applied, err
}

func (g *Gateway) RecordApplication(ctx context.Context, kind game.ReceiptKind, sessionID, teamID, sourceID, optionID string) error {
	table, err := receiptTable(kind)
	if err != nil {
		return err
	}
	return g.call(ctx, callOpts{name: "receipts.record"}, func(ctx context.Context) error {
		_, err := g.pool.Exec(ctx, `
			INSERT INTO `+table+` (session_id, team_id, source_id, option_id)
			VALUES ($1, $2, $3, $4)
		`, sessionID, teamID, sourceID, optionID)
		return err
	})
}

// ApplyDeltasWithReceipt is the exactly-once mutation at the heart of the
// application engines: receipt insert and KPI update commit together, so a
// crash mid-way leaves no receipt and permits one safe retry. A losing
// racer sees rows-affected 0 on the receipt and backs off without touching
// the KPI row. Returns whether this call performed the application.
func (g *Gateway) ApplyDeltasWithReceipt(ctx context.Context, kind game.ReceiptKind, sessionID, teamID, sourceID, optionID string, round int, deltas []game.KPIDelta) (bool, error) {
	table, err := receiptTable(kind)
	if err != nil {
		return false, err
	}
	var (
		applied bool
		k       game.KPIRound
	)
	err = g.call(ctx, callOpts{name: "receipts.apply", timeout: 10 * time.Second}, func(ctx context.Context) error {
		applied = false
		tx, err := g.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		cmd, err := tx.Exec(ctx, `
			INSERT INTO `+table+` (session_id, team_id, source_id, option_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, team_id, source_id, option_id) DO NOTHING
		`, sessionID, teamID, sourceID, optionID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			// Already applied by an earlier trigger.
			return nil
		}

		if err := tx.QueryRow(ctx, `
			SELECT session_id, team_id, round, capacity, orders, cost, asp,
			       revenue, net_income, net_margin_bps, updated_at
			FROM sim.team_round_data
			WHERE session_id = $1 AND team_id = $2 AND round = $3
			FOR UPDATE
		`, sessionID, teamID, round).Scan(
			&k.SessionID, &k.TeamID, &k.Round, &k.Capacity, &k.Orders, &k.Cost, &k.ASP,
			&k.Revenue, &k.NetIncome, &k.NetMarginBps, &k.UpdatedAt); err != nil {
			return err
		}
		for _, d := range deltas {
			k.Apply(d)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sim.team_round_data
			SET capacity = $1, orders = $2, cost = $3, asp = $4,
			    revenue = $5, net_income = $6, net_margin_bps = $7, updated_at = now()
			WHERE session_id = $8 AND team_id = $9 AND round = $10
		`, k.Capacity, k.Orders, k.Cost, k.ASP, k.Revenue, k.NetIncome, k.NetMarginBps,
			sessionID, teamID, round); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		g.emit(ctx, sessionID, realtime.TableRoundData, realtime.OpUpdate, k)
	}
	return applied, nil
}

type Receipt struct {
	SessionID string    `json:"session_id"`
	TeamID    string    `json:"team_id"`
	SourceID  string    `json:"source_id"`
	OptionID  string    `json:"option_id"`
	AppliedAt time.Time `json:"applied_at"`
}

func (g *Gateway) ReceiptsBySession(ctx context.Context, kind game.ReceiptKind, sessionID string) ([]Receipt, error) {
	table, err := receiptTable(kind)
	if err != nil {
		return nil, err
	}
	var out []Receipt
	err = g.call(ctx, callOpts{name: "receipts.by_session"}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, `
			SELECT session_id, team_id, source_id, option_id, applied_at
			FROM `+table+`
			WHERE session_id = $1
			ORDER BY applied_at
		`, sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var r Receipt
			if err := rows.Scan(&r.SessionID, &r.TeamID, &r.SourceID, &r.OptionID, &r.AppliedAt); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
