package content

// PhaseKind distinguishes the three interactive decision shapes.
type PhaseKind string

const (
	KindInvestment PhaseKind = "investment"
	KindChoice     PhaseKind = "choice"
	KindDoubleDown PhaseKind = "double_down"
)

// Phase is one named decision point in the game sequence. A phase is
// distinct from a slide: a slide is a single screen, a phase is the
// decision it hosts.
type Phase struct {
	ID                string
	Kind              PhaseKind
	Round             int
	SlideID           int
	Budget            int64 // investment phases only
	MultiSelect       bool  // choice phases whose answer is a combination token
	ImmediatePurchase bool  // decisions are binding and excluded from reset
}

const Rounds = 3

// DoubleDownPhaseID is the round-3 bonus-roll phase; its sacrifice/target
// pair must come from the team's settled round-3 investment basket.
const DoubleDownPhaseID = "r3_double_down"

// Round3InvestmentPhaseID feeds double-down eligibility.
const Round3InvestmentPhaseID = "r3_investments"

var phases = []Phase{
	{ID: "r1_investments", Kind: KindInvestment, Round: 1, SlideID: 4, Budget: 500_000},
	{ID: "ch1", Kind: KindChoice, Round: 1, SlideID: 7},
	{ID: "ch2", Kind: KindChoice, Round: 1, SlideID: 10},
	{ID: "r2_investments", Kind: KindInvestment, Round: 2, SlideID: 14, Budget: 400_000},
	{ID: "r2_flash_upgrade", Kind: KindInvestment, Round: 2, SlideID: 16, Budget: 150_000, ImmediatePurchase: true},
	{ID: "ch3", Kind: KindChoice, Round: 2, SlideID: 18},
	{ID: "ch4", Kind: KindChoice, Round: 2, SlideID: 21},
	{ID: Round3InvestmentPhaseID, Kind: KindInvestment, Round: 3, SlideID: 25, Budget: 600_000},
	{ID: "ch5", Kind: KindChoice, Round: 3, SlideID: 28, MultiSelect: true},
	{ID: "ch6", Kind: KindChoice, Round: 3, SlideID: 31},
	{ID: DoubleDownPhaseID, Kind: KindDoubleDown, Round: 3, SlideID: 34},
}

var phasesByID = func() map[string]Phase {
	m := make(map[string]Phase, len(phases))
	for _, p := range phases {
		m[p.ID] = p
	}
	return m
}()

var phasesBySlide = func() map[int]Phase {
	m := make(map[int]Phase, len(phases))
	for _, p := range phases {
		m[p.SlideID] = p
	}
	return m
}()

func PhaseByID(id string) (Phase, bool) {
	p, ok := phasesByID[id]
	return p, ok
}

// PhaseForSlide reports the interactive phase shown on a slide, if any.
func PhaseForSlide(slideID int) (Phase, bool) {
	p, ok := phasesBySlide[slideID]
	return p, ok
}

// RoundForSlide maps a slide to the round whose KPI record it mutates.
// Slides before the first decision belong to round 1; slides past the last
// phase stay in the final round.
func RoundForSlide(slideID int) int {
	round := 1
	for _, p := range phases {
		if slideID >= p.SlideID {
			round = p.Round
		}
	}
	return round
}

func IsDecisionSlide(slideID int) bool {
	_, ok := phasesBySlide[slideID]
	return ok
}

func Phases() []Phase {
	out := make([]Phase, len(phases))
	copy(out, phases)
	return out
}
