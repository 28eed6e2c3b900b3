package content

// KPIKey names one mutable figure on a team's round record.
type KPIKey string

// Round-1 starting figures for every team.
const (
	BaselineCapacity int64 = 5_000
	BaselineOrders   int64 = 4_500
	BaselineCost     int64 = 200_000
	BaselineASP      int64 = 100
)

const (
	KPICapacity KPIKey = "capacity"
	KPIOrders   KPIKey = "orders"
	KPICost     KPIKey = "cost"
	KPIASP      KPIKey = "asp"
)

// Denomination is the board-game granularity for a KPI kind. Double-down
// bonuses are rounded to these so displayed numbers match the physical
// score sheet.
func Denomination(kpi KPIKey) int64 {
	switch kpi {
	case KPICapacity, KPIOrders:
		return 250
	case KPIASP:
		return 10
	case KPICost:
		return 25_000
	default:
		return 1
	}
}

// Timing says when an effect lands on a team's KPI state.
type Timing string

const (
	// TimingImmediate applies to the current round's record.
	TimingImmediate Timing = "immediate"
	// TimingNextRoundStart is deferred to the start of the target round(s).
	TimingNextRoundStart Timing = "permanent_next_round_start"
)

// Effect is one KPI delta from a consequence or payoff table.
type Effect struct {
	KPI            KPIKey `json:"kpi"`
	Change         int64  `json:"change_value"`
	Timing         Timing `json:"timing"`
	AppliesToRound []int  `json:"applies_to_rounds,omitempty"`
}
