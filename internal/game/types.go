package game

import (
	"encoding/json"
	"fmt"
	"time"

	"simboard/internal/content"
)

type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type Session struct {
	ID           string        `json:"id"`
	HostID       string        `json:"host_id"`
	Status       SessionStatus `json:"status"`
	CurrentSlide int           `json:"current_slide"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Team struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Passcode  string    `json:"passcode"`
	CreatedAt time.Time `json:"created_at"`
}

// PayloadKind tags the decision union.
type PayloadKind string

const (
	PayloadInvestment PayloadKind = "investment"
	PayloadChoice     PayloadKind = "choice"
	PayloadDoubleDown PayloadKind = "double_down"
)

// DecisionPayload is the tagged union of the three decision shapes. The
// settlement engine switches exhaustively on the concrete type, so adding a
// phase kind is a compile-visible change.
type DecisionPayload interface {
	Kind() PayloadKind
}

// InvestmentPayload is a basket of option ids; TotalCost is the client's
// claimed spend and is recomputed server-side before settlement.
type InvestmentPayload struct {
	OptionIDs []string `json:"option_ids"`
	TotalCost int64    `json:"total_cost"`
}

func (InvestmentPayload) Kind() PayloadKind { return PayloadInvestment }

// ChoicePayload holds a single option id, or the canonical combination
// token on multi-select phases.
type ChoicePayload struct {
	OptionID string `json:"option_id"`
}

func (ChoicePayload) Kind() PayloadKind { return PayloadChoice }

// DoubleDownPayload names the round-3 investment being risked and the one
// whose payoff the boost lands on.
type DoubleDownPayload struct {
	SacrificeID string `json:"sacrifice_id"`
	TargetID    string `json:"target_id"`
}

func (DoubleDownPayload) Kind() PayloadKind { return PayloadDoubleDown }

type payloadEnvelope struct {
	Kind PayloadKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func MarshalPayload(p DecisionPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Kind: p.Kind(), Data: data})
}

func UnmarshalPayload(raw []byte) (DecisionPayload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case PayloadInvestment:
		var p InvestmentPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PayloadChoice:
		var p ChoicePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PayloadDoubleDown:
		var p DoubleDownPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
}

type Decision struct {
	SessionID         string          `json:"session_id"`
	TeamID            string          `json:"team_id"`
	PhaseID           string          `json:"phase_id"`
	Payload           DecisionPayload `json:"payload"`
	ImmediatePurchase bool            `json:"immediate_purchase"`
	SubmittedAt       time.Time       `json:"submitted_at"`
}

type KPIDelta struct {
	KPI    content.KPIKey `json:"kpi"`
	Change int64          `json:"change"`
}

// KPIRound is the single mutable state row per (session, team, round).
type KPIRound struct {
	SessionID    string    `json:"session_id"`
	TeamID       string    `json:"team_id"`
	Round        int       `json:"round"`
	Capacity     int64     `json:"capacity"`
	Orders       int64     `json:"orders"`
	Cost         int64     `json:"cost"`
	ASP          int64     `json:"asp"`
	Revenue      int64     `json:"revenue"`
	NetIncome    int64     `json:"net_income"`
	NetMarginBps int64     `json:"net_margin_bps"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Adjustment is a carry-forward effect folded in when its target round's
// record is initialized. The six-column key makes re-scheduling idempotent.
type Adjustment struct {
	SessionID   string         `json:"session_id"`
	TeamID      string         `json:"team_id"`
	TargetRound int            `json:"target_round"`
	KPI         content.KPIKey `json:"kpi"`
	Change      int64          `json:"change"`
	ChallengeID string         `json:"challenge_id"`
	OptionID    string         `json:"option_id"`
}

// DoubleDownResult is the single canonical outcome per (session,
// investment); every observer converges on this row instead of re-rolling.
type DoubleDownResult struct {
	SessionID    string     `json:"session_id"`
	InvestmentID string     `json:"investment_id"`
	Die1         int        `json:"die1"`
	Die2         int        `json:"die2"`
	Total        int        `json:"total"`
	BoostPercent int        `json:"boost_percent"`
	TeamNames    []string   `json:"team_names"`
	Deltas       []KPIDelta `json:"deltas"`
	RolledAt     time.Time  `json:"rolled_at"`
}

// TeamPick is one team's double-down opt-in for a specific investment.
type TeamPick struct {
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
	SacrificeID string `json:"sacrifice_id"`
}

type LeaderboardRow struct {
	Rank         int    `json:"rank"`
	TeamID       string `json:"team_id"`
	TeamName     string `json:"team_name"`
	NetIncomeSum int64  `json:"net_income_sum"`
}
