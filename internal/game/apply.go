package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"simboard/internal/content"
)

// ApplicationEngine lands consequence and payoff effects on team KPI
// records. Every application is gated by a receipt, so reveal slides can be
// revisited and retried without double-charging anyone.
type ApplicationEngine struct {
	teams       TeamStore
	decisions   DecisionStore
	kpis        KPIStore
	receipts    ReceiptStore
	adjustments AdjustmentStore
	log         *slog.Logger
}

func NewApplicationEngine(teams TeamStore, decisions DecisionStore, kpis KPIStore, receipts ReceiptStore, adjustments AdjustmentStore, log *slog.Logger) *ApplicationEngine {
	return &ApplicationEngine{
		teams:       teams,
		decisions:   decisions,
		kpis:        kpis,
		receipts:    receipts,
		adjustments: adjustments,
		log:         log,
	}
}

// partitionEffects splits an effect list into immediate deltas and deferred
// adjustments. Deferred effects with no explicit target land at the start
// of the round after the current one.
func partitionEffects(effects []content.Effect, currentRound int) (deltas []KPIDelta, deferred []Adjustment) {
	for _, eff := range effects {
		switch eff.Timing {
		case content.TimingImmediate:
			deltas = append(deltas, KPIDelta{KPI: eff.KPI, Change: eff.Change})
		case content.TimingNextRoundStart:
			rounds := eff.AppliesToRound
			if len(rounds) == 0 {
				rounds = []int{currentRound + 1}
			}
			for _, r := range rounds {
				if r > content.Rounds {
					continue
				}
				deferred = append(deferred, Adjustment{
					TargetRound: r,
					KPI:         eff.KPI,
					Change:      eff.Change,
				})
			}
		}
	}
	return deltas, deferred
}

// ApplyConsequence applies one team's settled challenge outcome. Safe to
// call any number of times.
func (e *ApplicationEngine) ApplyConsequence(ctx context.Context, sessionID, teamID, challengeID string) error {
	phase, ok := content.PhaseByID(challengeID)
	if !ok || phase.Kind != content.KindChoice {
		return ErrUnknownPhase
	}
	d, err := e.decisions.DecisionForTeamPhase(ctx, sessionID, teamID, challengeID)
	if errors.Is(err, ErrNotFound) {
		// No decision and no default means nothing to apply.
		return nil
	}
	if err != nil {
		return err
	}
	choice, ok := d.Payload.(ChoicePayload)
	if !ok {
		return fmt.Errorf("%w: challenge %s holds %T", ErrPayloadMismatch, challengeID, d.Payload)
	}

	effects, ok := content.ConsequenceEffects(challengeID, choice.OptionID)
	if !ok {
		return fmt.Errorf("%w: no consequence for %s/%s", ErrUnknownOption, challengeID, choice.OptionID)
	}
	return e.applyEffects(ctx, ReceiptConsequence, sessionID, teamID, challengeID, choice.OptionID, phase.Round, effects)
}

// ApplyConsequencesForPhase runs ApplyConsequence for every team that has a
// settled decision on the challenge. Host reveal slides call this.
func (e *ApplicationEngine) ApplyConsequencesForPhase(ctx context.Context, sessionID, challengeID string) error {
	settled, err := e.decisions.DecisionsForPhase(ctx, sessionID, challengeID)
	if err != nil {
		return err
	}
	for _, d := range settled {
		if err := e.ApplyConsequence(ctx, sessionID, d.TeamID, challengeID); err != nil {
			return err
		}
	}
	return nil
}

// ApplyPayoffs grants the payoff of every investment each team bought in
// the phase. Each (team, option) pair carries its own receipt, so a partial
// failure resumes where it stopped.
func (e *ApplicationEngine) ApplyPayoffs(ctx context.Context, sessionID, phaseID string) error {
	phase, ok := content.PhaseByID(phaseID)
	if !ok || phase.Kind != content.KindInvestment {
		return ErrUnknownPhase
	}
	if phase.ImmediatePurchase {
		return e.applyImmediatePurchasePayoffs(ctx, sessionID, phase)
	}

	settled, err := e.decisions.DecisionsForPhase(ctx, sessionID, phaseID)
	if err != nil {
		return err
	}
	for _, d := range settled {
		inv, ok := d.Payload.(InvestmentPayload)
		if !ok {
			return fmt.Errorf("%w: phase %s holds %T", ErrPayloadMismatch, phaseID, d.Payload)
		}
		for _, optionID := range inv.OptionIDs {
			if err := e.applyPayoff(ctx, sessionID, d.TeamID, phase, optionID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *ApplicationEngine) applyImmediatePurchasePayoffs(ctx context.Context, sessionID string, phase content.Phase) error {
	for _, opt := range content.InvestmentCatalog(phase.ID) {
		settled, err := e.decisions.DecisionsForPhase(ctx, sessionID, ImmediatePurchasePhaseID(phase.ID, opt.ID))
		if err != nil {
			return err
		}
		for _, d := range settled {
			if err := e.applyPayoff(ctx, sessionID, d.TeamID, phase, opt.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *ApplicationEngine) applyPayoff(ctx context.Context, sessionID, teamID string, phase content.Phase, optionID string) error {
	effects, ok := content.PayoffEffects(optionID)
	if !ok {
		return fmt.Errorf("%w: no payoff for %q", ErrUnknownOption, optionID)
	}
	return e.applyEffects(ctx, ReceiptPayoff, sessionID, teamID, phase.ID, optionID, phase.Round, effects)
}

func (e *ApplicationEngine) applyEffects(ctx context.Context, kind ReceiptKind, sessionID, teamID, sourceID, optionID string, round int, effects []content.Effect) error {
	done, err := e.receipts.HasBeenApplied(ctx, kind, sessionID, teamID, sourceID, optionID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	deltas, deferred := partitionEffects(effects, round)
	for _, adj := range deferred {
		adj.SessionID = sessionID
		adj.TeamID = teamID
		adj.ChallengeID = sourceID
		adj.OptionID = optionID
		if err := e.adjustments.UpsertAdjustment(ctx, adj); err != nil {
			return err
		}
	}

	applied, err := e.receipts.ApplyDeltasWithReceipt(ctx, kind, sessionID, teamID, sourceID, optionID, round, deltas)
	if err != nil {
		return err
	}
	if applied {
		e.log.Info("effects applied",
			"kind", string(kind), "session", sessionID, "team", teamID,
			"source", sourceID, "option", optionID, "deltas", len(deltas), "deferred", len(deferred))
	}
	return nil
}

// StartRound ensures a team's KPI record for the round exists: carried
// forward from the previous round (or the baseline for round 1) with any
// scheduled adjustments folded in. Losing an init race is fine; the winner's
// row is returned.
func (e *ApplicationEngine) StartRound(ctx context.Context, sessionID, teamID string, round int) (KPIRound, error) {
	if round < 1 || round > content.Rounds {
		return KPIRound{}, fmt.Errorf("round %d out of range", round)
	}
	existing, err := e.kpis.KPIRoundForTeam(ctx, sessionID, teamID, round)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return KPIRound{}, err
	}

	k := KPIRound{SessionID: sessionID, TeamID: teamID, Round: round}
	if round == 1 {
		k.Capacity = content.BaselineCapacity
		k.Orders = content.BaselineOrders
		k.Cost = content.BaselineCost
		k.ASP = content.BaselineASP
	} else {
		prev, err := e.StartRound(ctx, sessionID, teamID, round-1)
		if err != nil {
			return KPIRound{}, err
		}
		k.Capacity = prev.Capacity
		k.Orders = prev.Orders
		k.Cost = prev.Cost
		k.ASP = prev.ASP
	}

	adjs, err := e.adjustments.AdjustmentsForRound(ctx, sessionID, teamID, round)
	if err != nil {
		return KPIRound{}, err
	}
	for _, a := range adjs {
		k.Apply(KPIDelta{KPI: a.KPI, Change: a.Change})
	}
	k.Recompute()

	if err := e.kpis.CreateKPIRound(ctx, k); err != nil {
		if errors.Is(err, ErrConflict) {
			return e.kpis.KPIRoundForTeam(ctx, sessionID, teamID, round)
		}
		return KPIRound{}, err
	}
	e.log.Info("round record initialized",
		"session", sessionID, "team", teamID, "round", round, "adjustments", len(adjs))
	return k, nil
}

// StartRoundForSession initializes the round record for every team.
func (e *ApplicationEngine) StartRoundForSession(ctx context.Context, sessionID string, round int) error {
	teams, err := e.teams.TeamsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, t := range teams {
		if _, err := e.StartRound(ctx, sessionID, t.ID, round); err != nil {
			return err
		}
	}
	return nil
}
