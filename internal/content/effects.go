package content

// consequenceEffects maps (challenge id, option id) to the KPI deltas the
// reveal slide applies. Values are hand-tuned board-game numbers.
var consequenceEffects = map[string]map[string][]Effect{
	"ch1": {
		"A": {{KPI: KPICost, Change: 40_000, Timing: TimingImmediate}},
		"B": {
			{KPI: KPIOrders, Change: -500, Timing: TimingImmediate},
			{KPI: KPIASP, Change: 20, Timing: TimingImmediate},
		},
	},
	"ch2": {
		"A": {
			{KPI: KPICost, Change: 60_000, Timing: TimingImmediate},
			{KPI: KPIOrders, Change: 1_000, Timing: TimingImmediate},
		},
		"B": {{KPI: KPIOrders, Change: -750, Timing: TimingImmediate}},
	},
	"ch3": {
		"A": {{KPI: KPICost, Change: 50_000, Timing: TimingImmediate}},
		"B": {
			{KPI: KPICost, Change: 120_000, Timing: TimingImmediate},
			{KPI: KPIOrders, Change: -250, Timing: TimingNextRoundStart, AppliesToRound: []int{3}},
		},
	},
	"ch4": {
		"A": {{KPI: KPICapacity, Change: -1_000, Timing: TimingNextRoundStart, AppliesToRound: []int{3}}},
		"B": {
			{KPI: KPICapacity, Change: -500, Timing: TimingImmediate},
			{KPI: KPICost, Change: 50_000, Timing: TimingImmediate},
		},
	},
	"ch5": {
		"A+C": {{KPI: KPIASP, Change: 30, Timing: TimingImmediate}},
		"B+C": {
			{KPI: KPIOrders, Change: 750, Timing: TimingImmediate},
			{KPI: KPIASP, Change: -10, Timing: TimingImmediate},
		},
		"B+D": {
			{KPI: KPIOrders, Change: 1_250, Timing: TimingImmediate},
			{KPI: KPIASP, Change: -30, Timing: TimingImmediate},
		},
		"C+D": {{KPI: KPIOrders, Change: 500, Timing: TimingImmediate}},
	},
	"ch6": {
		"A": {
			{KPI: KPICost, Change: 80_000, Timing: TimingImmediate},
			{KPI: KPIOrders, Change: 500, Timing: TimingImmediate},
		},
		"B": {
			{KPI: KPICost, Change: 20_000, Timing: TimingImmediate},
			{KPI: KPIOrders, Change: -1_000, Timing: TimingImmediate},
		},
	},
}

// payoffEffects maps an investment option id to the KPI deltas its payoff
// reveal grants. Double-down scales these by the rolled boost.
var payoffEffects = map[string][]Effect{
	"rd1_inv_second_shift": {{KPI: KPICapacity, Change: 1_500, Timing: TimingImmediate}},
	"rd1_inv_sales_team":   {{KPI: KPIOrders, Change: 1_250, Timing: TimingImmediate}},
	"rd1_inv_quality_lab":  {{KPI: KPIASP, Change: 30, Timing: TimingImmediate}},
	"rd1_inv_brand_launch": {
		{KPI: KPIOrders, Change: 750, Timing: TimingImmediate},
		{KPI: KPIASP, Change: 10, Timing: TimingImmediate},
	},
	"rd1_inv_lean_program": {{KPI: KPICost, Change: -50_000, Timing: TimingImmediate}},

	"rd2_inv_warehouse":     {{KPI: KPIOrders, Change: 1_000, Timing: TimingImmediate}},
	"rd2_inv_crm":           {{KPI: KPIOrders, Change: 500, Timing: TimingNextRoundStart, AppliesToRound: []int{3}}},
	"rd2_inv_supplier_deal": {{KPI: KPICost, Change: -75_000, Timing: TimingImmediate}},
	"rd2_inv_export_push": {
		{KPI: KPIOrders, Change: 1_500, Timing: TimingImmediate},
		{KPI: KPICost, Change: 25_000, Timing: TimingImmediate},
	},

	"rd2_ip_press_repair": {{KPI: KPICapacity, Change: 750, Timing: TimingImmediate}},
	"rd2_ip_rush_hiring":  {{KPI: KPICapacity, Change: 500, Timing: TimingImmediate}},

	"rd3_inv_line_expansion": {{KPI: KPICapacity, Change: 2_000, Timing: TimingImmediate}},
	"rd3_inv_automation": {
		{KPI: KPICapacity, Change: 1_000, Timing: TimingImmediate},
		{KPI: KPICost, Change: -50_000, Timing: TimingImmediate},
	},
	"rd3_inv_ecommerce": {
		{KPI: KPIOrders, Change: 1_000, Timing: TimingImmediate},
		{KPI: KPIASP, Change: 20, Timing: TimingImmediate},
	},
	"rd3_inv_training": {{KPI: KPICapacity, Change: 750, Timing: TimingImmediate}},
}

// ConsequenceEffects returns the effect list for a settled challenge choice.
// The option id is the canonical combination token on multi-select phases.
func ConsequenceEffects(challengeID, optionID string) ([]Effect, bool) {
	byOption, ok := consequenceEffects[challengeID]
	if !ok {
		return nil, false
	}
	effects, ok := byOption[optionID]
	return effects, ok
}

// PayoffEffects returns the base payoff for a purchased investment.
func PayoffEffects(investmentID string) ([]Effect, bool) {
	effects, ok := payoffEffects[investmentID]
	return effects, ok
}

// BoostForSum maps a two-dice sum to the double-down boost percentage.
func BoostForSum(sum int) int {
	switch {
	case sum <= 2:
		return 0
	case sum <= 4:
		return 25
	case sum <= 8:
		return 75
	default:
		return 100
	}
}
