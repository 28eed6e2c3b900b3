package content

import "testing"

func TestRoundForSlide(t *testing.T) {
	tests := []struct {
		slide int
		want  int
	}{
		{1, 1},  // intro slides precede the first decision
		{4, 1},
		{13, 1}, // between ch2 and the round-2 investments
		{14, 2},
		{24, 2},
		{25, 3},
		{34, 3},
		{40, 3}, // past the last phase stays in the final round
	}
	for _, tt := range tests {
		if got := RoundForSlide(tt.slide); got != tt.want {
			t.Fatalf("RoundForSlide(%d) = %d, want %d", tt.slide, got, tt.want)
		}
	}
}

func TestPhaseLookups(t *testing.T) {
	p, ok := PhaseForSlide(16)
	if !ok || p.ID != "r2_flash_upgrade" {
		t.Fatalf("PhaseForSlide(16) = %+v, %v", p, ok)
	}
	if !p.ImmediatePurchase {
		t.Fatal("flash upgrade not flagged immediate")
	}
	if _, ok := PhaseForSlide(5); ok {
		t.Fatal("slide 5 is not a decision slide")
	}
	if !IsDecisionSlide(34) || IsDecisionSlide(33) {
		t.Fatal("decision-slide predicate disagrees with the phase table")
	}
	if _, ok := PhaseByID("ch7"); ok {
		t.Fatal("unknown phase resolved")
	}
}

func TestBoostForSum(t *testing.T) {
	tests := []struct {
		sum  int
		want int
	}{
		{2, 0},
		{3, 25},
		{4, 25},
		{5, 75},
		{8, 75},
		{9, 100},
		{12, 100},
	}
	for _, tt := range tests {
		if got := BoostForSum(tt.sum); got != tt.want {
			t.Fatalf("BoostForSum(%d) = %d, want %d", tt.sum, got, tt.want)
		}
	}
}

func TestCanonicalCombination(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"C", "A"}, "A+C"},
		{[]string{"A", "C"}, "A+C"},
		{[]string{" B ", "D"}, "B+D"},
		{[]string{"C"}, "C"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := CanonicalCombination(tt.in); got != tt.want {
			t.Fatalf("CanonicalCombination(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsLegalCombination(t *testing.T) {
	legal := []string{"A+C", "B+C", "B+D", "C+D"}
	for _, token := range legal {
		if !IsLegalCombination(token) {
			t.Fatalf("%s should be legal", token)
		}
	}
	for _, token := range []string{"A+B", "A+D", "A", "C+A", ""} {
		if IsLegalCombination(token) {
			t.Fatalf("%s should be illegal", token)
		}
	}
}

func TestDefaults(t *testing.T) {
	for _, id := range []string{"ch1", "ch2", "ch3", "ch4", "ch6"} {
		opt, ok := DefaultOption(id)
		if !ok {
			t.Fatalf("%s has no default option", id)
		}
		if _, found := ChallengeOptionByID(id, opt.ID); !found {
			t.Fatalf("%s default %q not in its own catalog", id, opt.ID)
		}
	}
	combo, ok := DefaultCombination("ch5")
	if !ok || !IsLegalCombination(combo) {
		t.Fatalf("ch5 default %q, ok=%v", combo, ok)
	}
	if _, ok := DefaultCombination("ch1"); ok {
		t.Fatal("single-select challenge has a default combination")
	}
}

// Cross-check the static tables against each other so a catalog edit cannot
// silently orphan an effect lookup at runtime.
func TestEveryChallengeOutcomeHasConsequences(t *testing.T) {
	for _, p := range Phases() {
		if p.Kind != KindChoice {
			continue
		}
		if p.MultiSelect {
			for token := range legalCombinations {
				if _, ok := ConsequenceEffects(p.ID, token); !ok {
					t.Fatalf("%s/%s has no consequence entry", p.ID, token)
				}
			}
			continue
		}
		for _, opt := range ChallengeOptions(p.ID) {
			if _, ok := ConsequenceEffects(p.ID, opt.ID); !ok {
				t.Fatalf("%s/%s has no consequence entry", p.ID, opt.ID)
			}
		}
	}
}

func TestEveryInvestmentHasAPayoff(t *testing.T) {
	for _, p := range Phases() {
		if p.Kind != KindInvestment {
			continue
		}
		var minCost int64
		for _, opt := range InvestmentCatalog(p.ID) {
			if _, ok := PayoffEffects(opt.ID); !ok {
				t.Fatalf("%s/%s has no payoff entry", p.ID, opt.ID)
			}
			if opt.Cost <= 0 {
				t.Fatalf("%s/%s has non-positive cost %d", p.ID, opt.ID, opt.Cost)
			}
			if minCost == 0 || opt.Cost < minCost {
				minCost = opt.Cost
			}
		}
		if minCost > p.Budget {
			t.Fatalf("%s budget %d cannot afford any option", p.ID, p.Budget)
		}
	}
}

func TestDeferredEffectsTargetValidRounds(t *testing.T) {
	check := func(where string, effects []Effect) {
		for _, eff := range effects {
			for _, r := range eff.AppliesToRound {
				if r < 1 || r > Rounds {
					t.Fatalf("%s targets round %d", where, r)
				}
			}
			if eff.Timing != TimingImmediate && eff.Timing != TimingNextRoundStart {
				t.Fatalf("%s has unknown timing %q", where, eff.Timing)
			}
		}
	}
	for challengeID, byOption := range consequenceEffects {
		for optionID, effects := range byOption {
			check(challengeID+"/"+optionID, effects)
		}
	}
	for investmentID, effects := range payoffEffects {
		check(investmentID, effects)
	}
}

func TestDenomination(t *testing.T) {
	tests := []struct {
		kpi  KPIKey
		want int64
	}{
		{KPICapacity, 250},
		{KPIOrders, 250},
		{KPIASP, 10},
		{KPICost, 25_000},
		{KPIKey("unknown"), 1},
	}
	for _, tt := range tests {
		if got := Denomination(tt.kpi); got != tt.want {
			t.Fatalf("Denomination(%s) = %d, want %d", tt.kpi, got, tt.want)
		}
	}
}

func TestInvestmentOptionByID(t *testing.T) {
	opt, ok := InvestmentOptionByID("rd2_ip_press_repair")
	if !ok || opt.Cost != 75_000 {
		t.Fatalf("lookup = %+v, %v", opt, ok)
	}
	if _, ok := InvestmentOptionByID("rd9_inv_moonshot"); ok {
		t.Fatal("unknown option resolved")
	}
}
