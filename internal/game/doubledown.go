package game

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"simboard/internal/content"
	"simboard/internal/realtime"
)

// Role names who is driving a double-down resolution. Exactly one client
// holds the authority role per session; everyone else observes and must
// converge on the authority's persisted roll.
type Role string

const (
	RoleAuthority Role = "authority"
	RoleObserver  Role = "observer"
)

// RollState is the per-investment resolution lifecycle, broadcast so
// presentation displays can animate in step with the authority.
type RollState string

const (
	StateAwaitingTeams   RollState = "awaiting_teams"
	StateShowingTeams    RollState = "showing_teams"
	StateRolling         RollState = "rolling"
	StateShowingResults  RollState = "showing_results"
	StateApplyingEffects RollState = "applying_effects"
	StateComplete        RollState = "complete"
)

// DoubleDownResolver generates and applies the bonus roll for one
// investment. Randomness happens exactly once per (session, investment):
// the authority rolls, everyone else polls the result store.
type DoubleDownResolver struct {
	store    DoubleDownStore
	receipts ReceiptStore
	bus      Broadcaster
	log      *slog.Logger

	// RollDwell separates announcing the opted-in teams from the roll so
	// displays can build tension.
	RollDwell time.Duration
	// WaitEvery and WaitLimit bound the observer poll; exhaustion surfaces
	// ErrResultPending instead of spinning.
	WaitEvery time.Duration
	WaitLimit int

	mu       sync.Mutex
	rng      *rand.Rand
	inFlight map[string]bool
}

func NewDoubleDownResolver(store DoubleDownStore, receipts ReceiptStore, bus Broadcaster, log *slog.Logger) *DoubleDownResolver {
	return &DoubleDownResolver{
		store:     store,
		receipts:  receipts,
		bus:       bus,
		log:       log,
		RollDwell: 4 * time.Second,
		WaitEvery: 2 * time.Second,
		WaitLimit: 15,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		inFlight:  make(map[string]bool),
	}
}

// Resolve drives one investment's bonus roll to completion and returns the
// canonical result. Observers never mutate anything; they wait for the
// authority's row. Re-entering a completed investment returns the stored
// result without re-rolling, but the authority still re-runs the
// receipt-guarded application: a crash between persisting the roll and
// landing the boost heals on the next trigger instead of skipping teams.
func (r *DoubleDownResolver) Resolve(ctx context.Context, role Role, sessionID, investmentID string) (DoubleDownResult, error) {
	existing, err := r.store.DoubleDownResultFor(ctx, sessionID, investmentID)
	if err == nil {
		if role == RoleAuthority {
			picks, err := r.store.TeamsForInvestment(ctx, sessionID, investmentID)
			if err != nil {
				return DoubleDownResult{}, err
			}
			if err := r.applyBoost(ctx, sessionID, investmentID, picks, existing.Deltas); err != nil {
				return DoubleDownResult{}, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return DoubleDownResult{}, err
	}
	if role != RoleAuthority {
		return r.awaitResult(ctx, sessionID, investmentID)
	}
	return r.resolveAsAuthority(ctx, sessionID, investmentID)
}

func (r *DoubleDownResolver) resolveAsAuthority(ctx context.Context, sessionID, investmentID string) (DoubleDownResult, error) {
	key := sessionID + "/" + investmentID
	r.mu.Lock()
	if r.inFlight[key] {
		r.mu.Unlock()
		// A second authority-tab trigger raced us; converge like an observer.
		return r.awaitResult(ctx, sessionID, investmentID)
	}
	r.inFlight[key] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inFlight, key)
		r.mu.Unlock()
	}()

	picks, err := r.store.TeamsForInvestment(ctx, sessionID, investmentID)
	if err != nil {
		return DoubleDownResult{}, err
	}
	if len(picks) == 0 {
		r.broadcastState(ctx, sessionID, investmentID, StateComplete, nil)
		return DoubleDownResult{}, ErrNoRoll
	}

	names := make([]string, len(picks))
	for i, p := range picks {
		names[i] = p.TeamName
	}
	r.broadcastState(ctx, sessionID, investmentID, StateShowingTeams, map[string]any{"teams": names})

	if err := sleepContext(ctx, r.RollDwell); err != nil {
		return DoubleDownResult{}, err
	}
	r.broadcastState(ctx, sessionID, investmentID, StateRolling, nil)

	r.mu.Lock()
	die1 := r.rng.Intn(6) + 1
	die2 := r.rng.Intn(6) + 1
	r.mu.Unlock()
	total := die1 + die2
	boost := content.BoostForSum(total)

	effects, ok := content.PayoffEffects(investmentID)
	if !ok {
		return DoubleDownResult{}, ErrUnknownOption
	}
	var deltas []KPIDelta
	for _, eff := range effects {
		change := ScaleAndRound(eff.Change, boost, eff.KPI)
		if change == 0 {
			continue
		}
		deltas = append(deltas, KPIDelta{KPI: eff.KPI, Change: change})
	}

	result := DoubleDownResult{
		SessionID:    sessionID,
		InvestmentID: investmentID,
		Die1:         die1,
		Die2:         die2,
		Total:        total,
		BoostPercent: boost,
		TeamNames:    names,
		Deltas:       deltas,
		RolledAt:     time.Now().UTC(),
	}
	if err := r.store.SaveDoubleDownResult(ctx, result); err != nil {
		return DoubleDownResult{}, err
	}
	r.log.Info("double-down rolled",
		"session", sessionID, "investment", investmentID,
		"die1", die1, "die2", die2, "boost", boost, "teams", len(picks))

	r.bus.Broadcast(ctx, sessionID, realtime.EventDiceRolled, result)
	r.broadcastState(ctx, sessionID, investmentID, StateApplyingEffects, nil)

	if err := r.applyBoost(ctx, sessionID, investmentID, picks, deltas); err != nil {
		return DoubleDownResult{}, err
	}

	r.bus.Broadcast(ctx, sessionID, realtime.EventDoubleDownApplied, result)
	r.broadcastState(ctx, sessionID, investmentID, StateComplete, nil)
	return result, nil
}

// applyBoost lands the scaled deltas on every opted-in team. Each (team,
// investment) pair carries its own receipt, so re-running after a partial
// failure only touches the teams that were missed.
func (r *DoubleDownResolver) applyBoost(ctx context.Context, sessionID, investmentID string, picks []TeamPick, deltas []KPIDelta) error {
	for _, p := range picks {
		applied, err := r.receipts.ApplyDeltasWithReceipt(ctx, ReceiptPayoff,
			sessionID, p.TeamID, doubleDownSource, investmentID, content.Rounds, deltas)
		if err != nil {
			return err
		}
		if applied {
			r.log.Info("double-down boost applied",
				"session", sessionID, "team", p.TeamID, "investment", investmentID)
		}
	}
	return nil
}

// doubleDownSource keys the boost's application receipts separately from
// the regular payoff reveal, which uses the investment phase id.
const doubleDownSource = "double_down"

func (r *DoubleDownResolver) awaitResult(ctx context.Context, sessionID, investmentID string) (DoubleDownResult, error) {
	for attempt := 0; attempt < r.WaitLimit; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, r.WaitEvery); err != nil {
				return DoubleDownResult{}, err
			}
		}
		result, err := r.store.DoubleDownResultFor(ctx, sessionID, investmentID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return DoubleDownResult{}, err
		}
	}
	return DoubleDownResult{}, ErrResultPending
}

func (r *DoubleDownResolver) broadcastState(ctx context.Context, sessionID, investmentID string, state RollState, extra map[string]any) {
	payload := map[string]any{
		"investment_id": investmentID,
		"state":         string(state),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := r.bus.Broadcast(ctx, sessionID, realtime.EventDiceRolled, payload); err != nil {
		r.log.Warn("state broadcast failed",
			"session", sessionID, "investment", investmentID, "state", string(state), "err", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
