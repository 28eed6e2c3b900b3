package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"simboard/internal/content"
)

// SettlementEngine validates and commits team decisions. Validation always
// recomputes money figures server-side; the client's claimed totals are
// display hints only.
type SettlementEngine struct {
	sessions  SessionStore
	teams     TeamStore
	decisions DecisionStore
	log       *slog.Logger
}

func NewSettlementEngine(sessions SessionStore, teams TeamStore, decisions DecisionStore, log *slog.Logger) *SettlementEngine {
	return &SettlementEngine{sessions: sessions, teams: teams, decisions: decisions, log: log}
}

type SubmitInput struct {
	SessionID string
	TeamID    string
	PhaseID   string
	Payload   DecisionPayload
}

// Submit settles one decision. Repeated submissions on a regular phase
// overwrite the earlier one; immediate-purchase options are committed
// individually and never overwritten.
func (e *SettlementEngine) Submit(ctx context.Context, in SubmitInput) error {
	sess, err := e.sessions.Session(ctx, in.SessionID)
	if err != nil {
		return err
	}
	if sess.Status != SessionActive {
		return ErrSessionNotActive
	}
	phase, ok := content.PhaseByID(in.PhaseID)
	if !ok {
		return ErrUnknownPhase
	}

	switch p := in.Payload.(type) {
	case InvestmentPayload:
		if phase.Kind != content.KindInvestment {
			return ErrPayloadMismatch
		}
		return e.settleInvestment(ctx, in, phase, p)
	case ChoicePayload:
		if phase.Kind != content.KindChoice {
			return ErrPayloadMismatch
		}
		return e.settleChoice(ctx, in, phase, p)
	case DoubleDownPayload:
		if phase.Kind != content.KindDoubleDown {
			return ErrPayloadMismatch
		}
		return e.settleDoubleDown(ctx, in, p)
	default:
		return fmt.Errorf("%w: %T", ErrPayloadMismatch, in.Payload)
	}
}

func (e *SettlementEngine) settleInvestment(ctx context.Context, in SubmitInput, phase content.Phase, p InvestmentPayload) error {
	catalog := content.InvestmentCatalog(phase.ID)
	costByID := make(map[string]int64, len(catalog))
	for _, opt := range catalog {
		costByID[opt.ID] = opt.Cost
	}

	var total int64
	seen := make(map[string]bool, len(p.OptionIDs))
	for _, id := range p.OptionIDs {
		cost, ok := costByID[id]
		if !ok {
			return fmt.Errorf("%w: %q in %s", ErrUnknownOption, id, phase.ID)
		}
		if seen[id] {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidCombination, id)
		}
		seen[id] = true
		total += cost
	}
	p.TotalCost = total

	if phase.ImmediatePurchase {
		return e.settleImmediatePurchases(ctx, in, phase, p, costByID)
	}
	if total > phase.Budget {
		return fmt.Errorf("%w: %d > %d", ErrBudgetExceeded, total, phase.Budget)
	}
	return e.upsert(ctx, in, p, false)
}

// settleImmediatePurchases commits each newly selected option as its own
// binding record. The budget covers the team's cumulative spend in the
// phase, so earlier purchases count against it.
func (e *SettlementEngine) settleImmediatePurchases(ctx context.Context, in SubmitInput, phase content.Phase, p InvestmentPayload, costByID map[string]int64) error {
	var spent int64
	owned := make(map[string]bool)
	for id, cost := range costByID {
		_, err := e.decisions.DecisionForTeamPhase(ctx, in.SessionID, in.TeamID, ImmediatePurchasePhaseID(phase.ID, id))
		switch {
		case err == nil:
			owned[id] = true
			spent += cost
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}
	}

	var newTotal int64
	for _, id := range p.OptionIDs {
		if !owned[id] {
			newTotal += costByID[id]
		}
	}
	if spent+newTotal > phase.Budget {
		return fmt.Errorf("%w: %d > %d", ErrBudgetExceeded, spent+newTotal, phase.Budget)
	}

	now := time.Now().UTC()
	for _, id := range p.OptionIDs {
		if owned[id] {
			continue
		}
		d := Decision{
			SessionID:         in.SessionID,
			TeamID:            in.TeamID,
			PhaseID:           ImmediatePurchasePhaseID(phase.ID, id),
			Payload:           InvestmentPayload{OptionIDs: []string{id}, TotalCost: costByID[id]},
			ImmediatePurchase: true,
			SubmittedAt:       now,
		}
		if err := e.decisions.InsertImmediatePurchase(ctx, d); err != nil {
			return err
		}
		e.log.Info("immediate purchase committed",
			"session", in.SessionID, "team", in.TeamID, "option", id)
	}
	return nil
}

func (e *SettlementEngine) settleChoice(ctx context.Context, in SubmitInput, phase content.Phase, p ChoicePayload) error {
	if phase.MultiSelect {
		// Clients may send an unordered "C+A" style token.
		token := content.CanonicalCombination(splitCombination(p.OptionID))
		if !content.IsLegalCombination(token) {
			return fmt.Errorf("%w: %q", ErrInvalidCombination, token)
		}
		p.OptionID = token
	} else if _, ok := content.ChallengeOptionByID(phase.ID, p.OptionID); !ok {
		return fmt.Errorf("%w: %q in %s", ErrUnknownOption, p.OptionID, phase.ID)
	}
	return e.upsert(ctx, in, p, false)
}

func splitCombination(token string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(token); i++ {
		if i == len(token) || token[i] == '+' {
			if i > start {
				parts = append(parts, token[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func (e *SettlementEngine) settleDoubleDown(ctx context.Context, in SubmitInput, p DoubleDownPayload) error {
	if p.SacrificeID == p.TargetID {
		return fmt.Errorf("%w: sacrifice and target must differ", ErrInvalidCombination)
	}
	basket, err := e.decisions.DecisionForTeamPhase(ctx, in.SessionID, in.TeamID, content.Round3InvestmentPhaseID)
	if errors.Is(err, ErrNotFound) {
		return ErrNotEligible
	}
	if err != nil {
		return err
	}
	inv, ok := basket.Payload.(InvestmentPayload)
	if !ok {
		return ErrNotEligible
	}
	purchased := make(map[string]bool, len(inv.OptionIDs))
	for _, id := range inv.OptionIDs {
		purchased[id] = true
	}
	if !purchased[p.SacrificeID] || !purchased[p.TargetID] {
		return ErrNotEligible
	}
	return e.upsert(ctx, in, p, false)
}

func (e *SettlementEngine) upsert(ctx context.Context, in SubmitInput, p DecisionPayload, immediate bool) error {
	d := Decision{
		SessionID:         in.SessionID,
		TeamID:            in.TeamID,
		PhaseID:           in.PhaseID,
		Payload:           p,
		ImmediatePurchase: immediate,
		SubmittedAt:       time.Now().UTC(),
	}
	if err := e.decisions.UpsertDecision(ctx, d); err != nil {
		return err
	}
	e.log.Info("decision settled",
		"session", in.SessionID, "team", in.TeamID, "phase", in.PhaseID, "kind", p.Kind())
	return nil
}

// Reset clears a team's regular decision so it can resubmit while the slide
// is still open. Immediate purchases survive resets.
func (e *SettlementEngine) Reset(ctx context.Context, sessionID, teamID, phaseID string) error {
	if _, ok := content.PhaseByID(phaseID); !ok {
		return ErrUnknownPhase
	}
	return e.decisions.DeleteRegularDecision(ctx, sessionID, teamID, phaseID)
}

// SettleDefaults commits the pre-selected answer for every team that never
// submitted before the host advanced past a challenge slide. Investment
// phases have no default (an empty basket is a valid outcome), and the
// double-down is strictly opt-in.
func (e *SettlementEngine) SettleDefaults(ctx context.Context, sessionID, phaseID string) error {
	phase, ok := content.PhaseByID(phaseID)
	if !ok {
		return ErrUnknownPhase
	}
	if phase.Kind != content.KindChoice {
		return nil
	}

	var optionID string
	if phase.MultiSelect {
		combo, ok := content.DefaultCombination(phase.ID)
		if !ok {
			return nil
		}
		optionID = combo
	} else {
		opt, ok := content.DefaultOption(phase.ID)
		if !ok {
			return nil
		}
		optionID = opt.ID
	}

	teams, err := e.teams.TeamsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	settled, err := e.decisions.DecisionsForPhase(ctx, sessionID, phaseID)
	if err != nil {
		return err
	}
	has := make(map[string]bool, len(settled))
	for _, d := range settled {
		has[d.TeamID] = true
	}

	now := time.Now().UTC()
	for _, t := range teams {
		if has[t.ID] {
			continue
		}
		d := Decision{
			SessionID:   sessionID,
			TeamID:      t.ID,
			PhaseID:     phaseID,
			Payload:     ChoicePayload{OptionID: optionID},
			SubmittedAt: now,
		}
		if err := e.decisions.UpsertDecision(ctx, d); err != nil {
			return err
		}
		e.log.Info("default committed",
			"session", sessionID, "team", t.ID, "phase", phaseID, "option", optionID)
	}
	return nil
}
