package game

import (
	"context"

	"simboard/internal/realtime"
)

// ReceiptKind selects between the consequence and payoff application
// receipt families.
type ReceiptKind string

const (
	ReceiptConsequence ReceiptKind = "consequence"
	ReceiptPayoff      ReceiptKind = "payoff"
)

// The engines consume the store gateway through these narrow interfaces so
// package tests can substitute in-memory fakes.

type SessionStore interface {
	Session(ctx context.Context, id string) (Session, error)
}

type TeamStore interface {
	TeamsBySession(ctx context.Context, sessionID string) ([]Team, error)
}

type DecisionStore interface {
	UpsertDecision(ctx context.Context, d Decision) error
	InsertImmediatePurchase(ctx context.Context, d Decision) error
	DecisionForTeamPhase(ctx context.Context, sessionID, teamID, phaseID string) (Decision, error)
	DecisionsForPhase(ctx context.Context, sessionID, phaseID string) ([]Decision, error)
	DeleteRegularDecision(ctx context.Context, sessionID, teamID, phaseID string) error
}

type KPIStore interface {
	KPIRoundForTeam(ctx context.Context, sessionID, teamID string, round int) (KPIRound, error)
	CreateKPIRound(ctx context.Context, k KPIRound) error
	UpdateKPIRound(ctx context.Context, k KPIRound) error
}

type ReceiptStore interface {
	HasBeenApplied(ctx context.Context, kind ReceiptKind, sessionID, teamID, sourceID, optionID string) (bool, error)
	ApplyDeltasWithReceipt(ctx context.Context, kind ReceiptKind, sessionID, teamID, sourceID, optionID string, round int, deltas []KPIDelta) (bool, error)
}

type AdjustmentStore interface {
	UpsertAdjustment(ctx context.Context, a Adjustment) error
	AdjustmentsForRound(ctx context.Context, sessionID, teamID string, round int) ([]Adjustment, error)
}

type DoubleDownStore interface {
	SaveDoubleDownResult(ctx context.Context, r DoubleDownResult) error
	DoubleDownResultFor(ctx context.Context, sessionID, investmentID string) (DoubleDownResult, error)
	TeamsForInvestment(ctx context.Context, sessionID, investmentID string) ([]TeamPick, error)
}

// Broadcaster publishes ephemeral events on a session channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID, event string, payload any) error
}

// Subscriber opens a session-channel subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string, h realtime.Handlers) (func(), error)
}
