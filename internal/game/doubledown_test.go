package game

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"simboard/internal/content"
	"simboard/internal/realtime"
)

func newResolverFixture() (*fakeStore, *DoubleDownResolver) {
	f := activeSessionStore()
	r := NewDoubleDownResolver(f, f, f, testLog)
	r.RollDwell = 0
	r.WaitEvery = time.Millisecond
	r.WaitLimit = 3
	return f, r
}

func TestResolveAuthorityRollsOnce(t *testing.T) {
	f, r := newResolverFixture()
	ctx := context.Background()
	seedRound(f, "t1", 3)
	seedRound(f, "t2", 3)
	f.picks["s1|rd3_inv_automation"] = []TeamPick{
		{TeamID: "t1", TeamName: "Alpha", SacrificeID: "rd3_inv_training"},
		{TeamID: "t2", TeamName: "Bravo", SacrificeID: "rd3_inv_ecommerce"},
	}

	result, err := r.Resolve(ctx, RoleAuthority, "s1", "rd3_inv_automation")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Die1 < 1 || result.Die1 > 6 || result.Die2 < 1 || result.Die2 > 6 {
		t.Fatalf("dice out of range: %d, %d", result.Die1, result.Die2)
	}
	if result.Total != result.Die1+result.Die2 {
		t.Fatalf("total %d != %d + %d", result.Total, result.Die1, result.Die2)
	}
	if result.BoostPercent != content.BoostForSum(result.Total) {
		t.Fatalf("boost %d does not match sum %d", result.BoostPercent, result.Total)
	}
	if len(result.TeamNames) != 2 {
		t.Fatalf("team names = %v", result.TeamNames)
	}

	// Deltas are the scaled automation payoff, denominated.
	for _, d := range result.Deltas {
		if denom := content.Denomination(d.KPI); d.Change%denom != 0 {
			t.Fatalf("delta %+v not a multiple of %d", d, denom)
		}
	}

	// Both opted-in teams got the boost, exactly once.
	want := KPIRound{Capacity: content.BaselineCapacity, Orders: content.BaselineOrders, Cost: content.BaselineCost, ASP: content.BaselineASP}
	for _, d := range result.Deltas {
		want.Apply(d)
	}
	for _, teamID := range []string{"t1", "t2"} {
		got := f.kpiFor("s1", teamID, content.Rounds)
		if got.Capacity != want.Capacity || got.Cost != want.Cost {
			t.Fatalf("%s: capacity/cost = %d/%d, want %d/%d",
				teamID, got.Capacity, got.Cost, want.Capacity, want.Cost)
		}
	}

	// Re-entering returns the stored roll without touching KPIs again.
	again, err := r.Resolve(ctx, RoleAuthority, "s1", "rd3_inv_automation")
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if again.Die1 != result.Die1 || again.Die2 != result.Die2 {
		t.Fatalf("second resolve re-rolled: %d/%d vs %d/%d", again.Die1, again.Die2, result.Die1, result.Die2)
	}
	if got := f.kpiFor("s1", "t1", content.Rounds); got.Capacity != want.Capacity {
		t.Fatalf("re-resolve re-applied the boost: capacity = %d", got.Capacity)
	}
}

func TestResolveFullBoostScalesWholePayoff(t *testing.T) {
	f, r := newResolverFixture()
	ctx := context.Background()
	seedRound(f, "t1", 3)
	f.picks["s1|rd3_inv_line_expansion"] = []TeamPick{
		{TeamID: "t1", TeamName: "Alpha", SacrificeID: "rd3_inv_training"},
	}
	// Force a 6+6 roll.
	r.rng = rand.New(rand.NewSource(seedFor(6, 6)))

	result, err := r.Resolve(ctx, RoleAuthority, "s1", "rd3_inv_line_expansion")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.BoostPercent != 100 {
		t.Fatalf("boost = %d, want 100 for total %d", result.BoostPercent, result.Total)
	}
	if len(result.Deltas) != 1 || result.Deltas[0].Change != 2_000 {
		t.Fatalf("deltas = %+v, want full capacity payoff 2000", result.Deltas)
	}
	if got := f.kpiFor("s1", "t1", 3); got.Capacity != content.BaselineCapacity+2_000 {
		t.Fatalf("capacity = %d", got.Capacity)
	}
}

func TestResolveSnakeEyesDropsAllDeltas(t *testing.T) {
	f, r := newResolverFixture()
	ctx := context.Background()
	seedRound(f, "t1", 3)
	f.picks["s1|rd3_inv_training"] = []TeamPick{
		{TeamID: "t1", TeamName: "Alpha", SacrificeID: "rd3_inv_automation"},
	}
	r.rng = rand.New(rand.NewSource(seedFor(1, 1)))

	result, err := r.Resolve(ctx, RoleAuthority, "s1", "rd3_inv_training")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.BoostPercent != 0 {
		t.Fatalf("boost = %d, want 0", result.BoostPercent)
	}
	if len(result.Deltas) != 0 {
		t.Fatalf("deltas = %+v, want none at 0%% boost", result.Deltas)
	}
	if got := f.kpiFor("s1", "t1", 3); got.Capacity != content.BaselineCapacity {
		t.Fatalf("capacity moved on a forfeited roll: %d", got.Capacity)
	}
}

// seedFor searches for an rng seed whose first two draws are the wanted dice.
func seedFor(die1, die2 int) int64 {
	for seed := int64(0); seed < 100_000; seed++ {
		rng := rand.New(rand.NewSource(seed))
		if rng.Intn(6)+1 == die1 && rng.Intn(6)+1 == die2 {
			return seed
		}
	}
	panic("no seed found")
}

func TestResolveRetryLandsBoostAfterPartialFailure(t *testing.T) {
	f, r := newResolverFixture()
	ctx := context.Background()
	seedRound(f, "t1", 3)
	f.picks["s1|rd3_inv_line_expansion"] = []TeamPick{
		{TeamID: "t1", TeamName: "Alpha", SacrificeID: "rd3_inv_training"},
	}
	r.rng = rand.New(rand.NewSource(seedFor(6, 6)))

	// The roll persists but the KPI write dies before the boost lands.
	f.failKPIWrites = true
	if _, err := r.Resolve(ctx, RoleAuthority, "s1", "rd3_inv_line_expansion"); err == nil {
		t.Fatal("expected failure while the store is down")
	}
	if _, err := f.DoubleDownResultFor(ctx, "s1", "rd3_inv_line_expansion"); err != nil {
		t.Fatalf("canonical roll was not persisted: %v", err)
	}
	if got := f.kpiFor("s1", "t1", 3); got.Capacity != content.BaselineCapacity {
		t.Fatalf("partial write landed: capacity = %d", got.Capacity)
	}

	// Retrying must return the stored roll and re-run the receipt-guarded
	// application, not skip it.
	f.failKPIWrites = false
	result, err := r.Resolve(ctx, RoleAuthority, "s1", "rd3_inv_line_expansion")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.BoostPercent != 100 {
		t.Fatalf("retry re-rolled: boost = %d", result.BoostPercent)
	}
	if got := f.kpiFor("s1", "t1", 3); got.Capacity != content.BaselineCapacity+2_000 {
		t.Fatalf("boost skipped on retry: capacity = %d", got.Capacity)
	}

	// Observers converging on the same result never write.
	if _, err := r.Resolve(ctx, RoleObserver, "s1", "rd3_inv_line_expansion"); err != nil {
		t.Fatalf("observer: %v", err)
	}
	if got := f.kpiFor("s1", "t1", 3); got.Capacity != content.BaselineCapacity+2_000 {
		t.Fatalf("observer mutated KPIs: capacity = %d", got.Capacity)
	}
}

func TestResolveNoPicks(t *testing.T) {
	f, r := newResolverFixture()

	_, err := r.Resolve(context.Background(), RoleAuthority, "s1", "rd3_inv_ecommerce")
	if !errors.Is(err, ErrNoRoll) {
		t.Fatalf("err = %v, want ErrNoRoll", err)
	}
	// The lifecycle still closes so displays do not hang.
	events := f.broadcastEvents()
	if len(events) == 0 || events[len(events)-1] != realtime.EventDiceRolled {
		t.Fatalf("no terminal state broadcast: %v", events)
	}
}

func TestResolveObserverConvergesOnStoredResult(t *testing.T) {
	f, r := newResolverFixture()
	stored := DoubleDownResult{
		SessionID: "s1", InvestmentID: "rd3_inv_automation",
		Die1: 3, Die2: 4, Total: 7, BoostPercent: 75,
	}
	f.ddResults["s1|rd3_inv_automation"] = stored

	got, err := r.Resolve(context.Background(), RoleObserver, "s1", "rd3_inv_automation")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Total != 7 || got.BoostPercent != 75 {
		t.Fatalf("got %+v, want stored result", got)
	}
}

func TestResolveObserverPollIsBounded(t *testing.T) {
	_, r := newResolverFixture()

	start := time.Now()
	_, err := r.Resolve(context.Background(), RoleObserver, "s1", "rd3_inv_automation")
	if !errors.Is(err, ErrResultPending) {
		t.Fatalf("err = %v, want ErrResultPending", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("poll did not stay bounded: %v", elapsed)
	}
}

func TestResolveObserverRespectsContext(t *testing.T) {
	_, r := newResolverFixture()
	r.WaitEvery = time.Minute
	r.WaitLimit = 10

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Resolve(ctx, RoleObserver, "s1", "rd3_inv_automation")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}

func TestResolveBroadcastsLifecycle(t *testing.T) {
	f, r := newResolverFixture()
	seedRound(f, "t1", 3)
	f.picks["s1|rd3_inv_automation"] = []TeamPick{
		{TeamID: "t1", TeamName: "Alpha", SacrificeID: "rd3_inv_training"},
	}

	if _, err := r.Resolve(context.Background(), RoleAuthority, "s1", "rd3_inv_automation"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var applied bool
	for _, ev := range f.broadcastEvents() {
		if ev == realtime.EventDoubleDownApplied {
			applied = true
		}
	}
	if !applied {
		t.Fatal("double-down applied event never broadcast")
	}
}
