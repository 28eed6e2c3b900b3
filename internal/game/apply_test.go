package game

import (
	"context"
	"errors"
	"testing"

	"simboard/internal/content"
)

func newApplicationFixture() (*fakeStore, *ApplicationEngine) {
	f := activeSessionStore()
	return f, NewApplicationEngine(f, f, f, f, f, testLog)
}

func seedRound(f *fakeStore, teamID string, round int) {
	k := KPIRound{
		SessionID: "s1", TeamID: teamID, Round: round,
		Capacity: content.BaselineCapacity,
		Orders:   content.BaselineOrders,
		Cost:     content.BaselineCost,
		ASP:      content.BaselineASP,
	}
	k.Recompute()
	f.kpis[kpiKey("s1", teamID, round)] = k
}

func TestApplyConsequenceIsExactlyOnce(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()
	seedRound(f, "t1", 2)
	f.decisions[decisionKey("s1", "t1", "ch4")] = Decision{
		SessionID: "s1", TeamID: "t1", PhaseID: "ch4",
		Payload: ChoicePayload{OptionID: "B"},
	}

	for i := 0; i < 3; i++ {
		if err := e.ApplyConsequence(ctx, "s1", "t1", "ch4"); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	// ch4/B: capacity -500 and cost +50000, once.
	k := f.kpiFor("s1", "t1", 2)
	if k.Capacity != 4_500 {
		t.Fatalf("capacity = %d, want 4500", k.Capacity)
	}
	if k.Cost != 250_000 {
		t.Fatalf("cost = %d, want 250000", k.Cost)
	}
}

func TestApplyConsequenceWithoutDecisionIsNoOp(t *testing.T) {
	f, e := newApplicationFixture()
	seedRound(f, "t1", 2)

	if err := e.ApplyConsequence(context.Background(), "s1", "t1", "ch4"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if k := f.kpiFor("s1", "t1", 2); k.Capacity != content.BaselineCapacity {
		t.Fatalf("KPI moved without a decision: capacity = %d", k.Capacity)
	}
}

func TestApplyConsequenceUnknownPhase(t *testing.T) {
	_, e := newApplicationFixture()
	if err := e.ApplyConsequence(context.Background(), "s1", "t1", "r1_investments"); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("err = %v, want ErrUnknownPhase", err)
	}
}

func TestApplyConsequenceDefersNextRoundEffects(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()
	seedRound(f, "t1", 2)
	// ch3/B: cost +120k immediately, orders -250 at the start of round 3.
	f.decisions[decisionKey("s1", "t1", "ch3")] = Decision{
		SessionID: "s1", TeamID: "t1", PhaseID: "ch3",
		Payload: ChoicePayload{OptionID: "B"},
	}

	if err := e.ApplyConsequence(ctx, "s1", "t1", "ch3"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	k := f.kpiFor("s1", "t1", 2)
	if k.Cost != 320_000 {
		t.Fatalf("immediate cost = %d, want 320000", k.Cost)
	}
	if k.Orders != content.BaselineOrders {
		t.Fatalf("deferred effect leaked into round 2: orders = %d", k.Orders)
	}

	adjs, err := f.AdjustmentsForRound(ctx, "s1", "t1", 3)
	if err != nil {
		t.Fatalf("adjustments: %v", err)
	}
	if len(adjs) != 1 || adjs[0].KPI != content.KPIOrders || adjs[0].Change != -250 {
		t.Fatalf("unexpected adjustments: %+v", adjs)
	}

	// The deferred effect lands when round 3 is initialized.
	r3, err := e.StartRound(ctx, "s1", "t1", 3)
	if err != nil {
		t.Fatalf("start round 3: %v", err)
	}
	wantOrders := content.BaselineOrders - 250
	if r3.Orders != wantOrders {
		t.Fatalf("round 3 orders = %d, want %d", r3.Orders, wantOrders)
	}
	// Round 2's immediate cost bump carried forward too.
	if r3.Cost != 320_000 {
		t.Fatalf("round 3 cost = %d, want carried 320000", r3.Cost)
	}
}

func TestApplyConsequencesForPhase(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()
	seedRound(f, "t1", 1)
	seedRound(f, "t2", 1)
	f.decisions[decisionKey("s1", "t1", "ch1")] = Decision{
		SessionID: "s1", TeamID: "t1", PhaseID: "ch1", Payload: ChoicePayload{OptionID: "A"},
	}
	f.decisions[decisionKey("s1", "t2", "ch1")] = Decision{
		SessionID: "s1", TeamID: "t2", PhaseID: "ch1", Payload: ChoicePayload{OptionID: "B"},
	}

	if err := e.ApplyConsequencesForPhase(ctx, "s1", "ch1"); err != nil {
		t.Fatalf("apply phase: %v", err)
	}
	if k := f.kpiFor("s1", "t1", 1); k.Cost != 240_000 {
		t.Fatalf("t1 cost = %d, want 240000", k.Cost)
	}
	k2 := f.kpiFor("s1", "t2", 1)
	if k2.Orders != 4_000 || k2.ASP != 120 {
		t.Fatalf("t2 orders/asp = %d/%d, want 4000/120", k2.Orders, k2.ASP)
	}
}

func TestApplyPayoffs(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()
	seedRound(f, "t1", 1)
	f.decisions[decisionKey("s1", "t1", "r1_investments")] = Decision{
		SessionID: "s1", TeamID: "t1", PhaseID: "r1_investments",
		Payload: InvestmentPayload{OptionIDs: []string{"rd1_inv_second_shift", "rd1_inv_lean_program"}},
	}

	for i := 0; i < 2; i++ {
		if err := e.ApplyPayoffs(ctx, "s1", "r1_investments"); err != nil {
			t.Fatalf("apply payoffs %d: %v", i, err)
		}
	}
	k := f.kpiFor("s1", "t1", 1)
	if k.Capacity != 6_500 {
		t.Fatalf("capacity = %d, want 6500", k.Capacity)
	}
	if k.Cost != 150_000 {
		t.Fatalf("cost = %d, want 150000", k.Cost)
	}
}

func TestApplyPayoffsRequiresInvestmentPhase(t *testing.T) {
	_, e := newApplicationFixture()
	if err := e.ApplyPayoffs(context.Background(), "s1", "ch1"); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("err = %v, want ErrUnknownPhase", err)
	}
}

func TestApplyPayoffsImmediatePurchasePhase(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()
	seedRound(f, "t1", 2)
	pid := ImmediatePurchasePhaseID("r2_flash_upgrade", "rd2_ip_press_repair")
	f.decisions[decisionKey("s1", "t1", pid)] = Decision{
		SessionID: "s1", TeamID: "t1", PhaseID: pid,
		Payload:           InvestmentPayload{OptionIDs: []string{"rd2_ip_press_repair"}},
		ImmediatePurchase: true,
	}

	if err := e.ApplyPayoffs(ctx, "s1", "r2_flash_upgrade"); err != nil {
		t.Fatalf("apply payoffs: %v", err)
	}
	if k := f.kpiFor("s1", "t1", 2); k.Capacity != 5_750 {
		t.Fatalf("capacity = %d, want 5750", k.Capacity)
	}
}

func TestApplyPayoffsResumesAfterPartialFailure(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()
	seedRound(f, "t1", 1)
	f.decisions[decisionKey("s1", "t1", "r1_investments")] = Decision{
		SessionID: "s1", TeamID: "t1", PhaseID: "r1_investments",
		Payload: InvestmentPayload{OptionIDs: []string{"rd1_inv_second_shift"}},
	}

	f.failKPIWrites = true
	if err := e.ApplyPayoffs(ctx, "s1", "r1_investments"); err == nil {
		t.Fatal("expected failure while the store is down")
	}
	if k := f.kpiFor("s1", "t1", 1); k.Capacity != content.BaselineCapacity {
		t.Fatalf("partial write landed: capacity = %d", k.Capacity)
	}

	f.failKPIWrites = false
	if err := e.ApplyPayoffs(ctx, "s1", "r1_investments"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if k := f.kpiFor("s1", "t1", 1); k.Capacity != 6_500 {
		t.Fatalf("capacity after retry = %d, want 6500", k.Capacity)
	}
}

func TestStartRoundInitializesBaseline(t *testing.T) {
	f, e := newApplicationFixture()

	k, err := e.StartRound(context.Background(), "s1", "t1", 1)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	if k.Capacity != 5_000 || k.Orders != 4_500 || k.Cost != 200_000 || k.ASP != 100 {
		t.Fatalf("baseline not applied: %+v", k)
	}
	if k.Revenue != 450_000 || k.NetIncome != 250_000 {
		t.Fatalf("derived figures missing: revenue=%d net=%d", k.Revenue, k.NetIncome)
	}
	if got := f.kpiFor("s1", "t1", 1); got.Round != 1 {
		t.Fatal("round record not persisted")
	}
}

func TestStartRoundIsIdempotent(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()

	first, err := e.StartRound(ctx, "s1", "t1", 1)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// Mutate the stored row; a second call must return it, not re-init.
	k := f.kpiFor("s1", "t1", 1)
	k.Apply(KPIDelta{KPI: content.KPIOrders, Change: 500})
	f.kpis[kpiKey("s1", "t1", 1)] = k

	second, err := e.StartRound(ctx, "s1", "t1", 1)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Orders != first.Orders+500 {
		t.Fatalf("second call re-initialized the row: orders = %d", second.Orders)
	}
}

func TestStartRoundCarriesForwardRecursively(t *testing.T) {
	f, e := newApplicationFixture()
	ctx := context.Background()

	// No earlier rounds exist; starting round 3 must build 1 and 2 first.
	k, err := e.StartRound(ctx, "s1", "t1", 3)
	if err != nil {
		t.Fatalf("start round 3: %v", err)
	}
	if k.Capacity != content.BaselineCapacity {
		t.Fatalf("capacity = %d, want carried baseline", k.Capacity)
	}
	for round := 1; round <= 3; round++ {
		if got := f.kpiFor("s1", "t1", round); got.Round != round {
			t.Fatalf("round %d record missing", round)
		}
	}
}

func TestStartRoundRejectsOutOfRange(t *testing.T) {
	_, e := newApplicationFixture()
	for _, round := range []int{0, 4} {
		if _, err := e.StartRound(context.Background(), "s1", "t1", round); err == nil {
			t.Fatalf("round %d accepted", round)
		}
	}
}

func TestStartRoundForSession(t *testing.T) {
	f, e := newApplicationFixture()
	if err := e.StartRoundForSession(context.Background(), "s1", 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, teamID := range []string{"t1", "t2"} {
		if got := f.kpiFor("s1", teamID, 1); got.Round != 1 {
			t.Fatalf("no record for %s", teamID)
		}
	}
}

func TestPartitionEffects(t *testing.T) {
	effects := []content.Effect{
		{KPI: content.KPICost, Change: 10_000, Timing: content.TimingImmediate},
		{KPI: content.KPIOrders, Change: -250, Timing: content.TimingNextRoundStart},
		{KPI: content.KPICapacity, Change: 500, Timing: content.TimingNextRoundStart, AppliesToRound: []int{3}},
		{KPI: content.KPIASP, Change: 10, Timing: content.TimingNextRoundStart, AppliesToRound: []int{4}},
	}
	deltas, deferred := partitionEffects(effects, 1)
	if len(deltas) != 1 || deltas[0].KPI != content.KPICost {
		t.Fatalf("deltas = %+v", deltas)
	}
	if len(deferred) != 2 {
		t.Fatalf("deferred = %+v", deferred)
	}
	// No explicit target defaults to the next round.
	if deferred[0].TargetRound != 2 || deferred[1].TargetRound != 3 {
		t.Fatalf("target rounds = %d/%d, want 2/3", deferred[0].TargetRound, deferred[1].TargetRound)
	}
}
