package store

import (
	"context"

	"simboard/internal/game"
)

func (g *Gateway) CreateTeam(ctx context.Context, t game.Team) (game.Team, error) {
	err := g.call(ctx, callOpts{name: "teams.create"}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			INSERT INTO sim.teams (id, session_id, name, passcode)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, t.ID, t.SessionID, t.Name, t.Passcode).Scan(&t.CreatedAt)
	})
	return t, err
}

func (g *Gateway) TeamsBySession(ctx context.Context, sessionID string) ([]game.Team, error) {
	var out []game.Team
	err := g.call(ctx, callOpts{name: "teams.by_session"}, func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, `
			SELECT id, session_id, name, passcode, created_at
			FROM sim.teams
			WHERE session_id = $1
			ORDER BY name
		`, sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var t game.Team
			if err := rows.Scan(&t.ID, &t.SessionID, &t.Name, &t.Passcode, &t.CreatedAt); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

func (g *Gateway) UpdateTeam(ctx context.Context, sessionID, teamID, name, passcode string) error {
	return g.call(ctx, callOpts{name: "teams.update"}, func(ctx context.Context) error {
		cmd, err := g.pool.Exec(ctx, `
			UPDATE sim.teams
			SET name = $1, passcode = $2
			WHERE id = $3 AND session_id = $4
		`, name, passcode, teamID, sessionID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return game.ErrNotFound
		}
		return nil
	})
}

func (g *Gateway) DeleteTeam(ctx context.Context, sessionID, teamID string) error {
	return g.call(ctx, callOpts{name: "teams.delete"}, func(ctx context.Context) error {
		tx, err := g.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)
		for _, stmt := range []string{
			`DELETE FROM sim.team_round_data WHERE session_id = $1 AND team_id = $2`,
			`DELETE FROM sim.team_decisions WHERE session_id = $1 AND team_id = $2`,
			`DELETE FROM sim.teams WHERE session_id = $1 AND id = $2`,
		} {
			if _, err := tx.Exec(ctx, stmt, sessionID, teamID); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
}

// AuthenticateTeam checks the shared passcode. Critical: a flaky data path
// must not lock a classroom out of joining, so no breaker.
func (g *Gateway) AuthenticateTeam(ctx context.Context, sessionID, teamID, passcode string) (game.Team, error) {
	var t game.Team
	err := g.call(ctx, callOpts{name: "teams.authenticate", critical: true}, func(ctx context.Context) error {
		return g.pool.QueryRow(ctx, `
			SELECT id, session_id, name, passcode, created_at
			FROM sim.teams
			WHERE id = $1 AND session_id = $2
		`, teamID, sessionID).Scan(&t.ID, &t.SessionID, &t.Name, &t.Passcode, &t.CreatedAt)
	})
	if err != nil {
		return game.Team{}, err
	}
	if t.Passcode != passcode {
		return game.Team{}, game.ErrPermissionDenied
	}
	return t, nil
}
