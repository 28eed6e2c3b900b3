package game

import (
	"context"
	"fmt"
	"sync"
)

// fakeStore is an in-memory stand-in for the persistent gateway, matching
// its error taxonomy so engines are exercised against the same contract.
type fakeStore struct {
	mu          sync.Mutex
	sessions    map[string]Session
	teams       map[string][]Team
	decisions   map[string]Decision
	kpis        map[string]KPIRound
	receipts    map[string]bool
	adjustments map[string]Adjustment
	ddResults   map[string]DoubleDownResult
	picks       map[string][]TeamPick
	broadcasts  []fakeBroadcast

	failKPIWrites bool
}

type fakeBroadcast struct {
	SessionID string
	Event     string
	Payload   any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    make(map[string]Session),
		teams:       make(map[string][]Team),
		decisions:   make(map[string]Decision),
		kpis:        make(map[string]KPIRound),
		receipts:    make(map[string]bool),
		adjustments: make(map[string]Adjustment),
		ddResults:   make(map[string]DoubleDownResult),
		picks:       make(map[string][]TeamPick),
	}
}

func decisionKey(sessionID, teamID, phaseID string) string {
	return sessionID + "|" + teamID + "|" + phaseID
}

func kpiKey(sessionID, teamID string, round int) string {
	return fmt.Sprintf("%s|%s|%d", sessionID, teamID, round)
}

func receiptKey(kind ReceiptKind, sessionID, teamID, sourceID, optionID string) string {
	return string(kind) + "|" + sessionID + "|" + teamID + "|" + sourceID + "|" + optionID
}

func (f *fakeStore) Session(_ context.Context, id string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) TeamsBySession(_ context.Context, sessionID string) ([]Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Team(nil), f.teams[sessionID]...), nil
}

func (f *fakeStore) UpsertDecision(_ context.Context, d Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions[decisionKey(d.SessionID, d.TeamID, d.PhaseID)] = d
	return nil
}

func (f *fakeStore) InsertImmediatePurchase(_ context.Context, d Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := decisionKey(d.SessionID, d.TeamID, d.PhaseID)
	if _, exists := f.decisions[key]; exists {
		return nil
	}
	f.decisions[key] = d
	return nil
}

func (f *fakeStore) DecisionForTeamPhase(_ context.Context, sessionID, teamID, phaseID string) (Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decisions[decisionKey(sessionID, teamID, phaseID)]
	if !ok {
		return Decision{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) DecisionsForPhase(_ context.Context, sessionID, phaseID string) ([]Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Decision
	for _, d := range f.decisions {
		if d.SessionID == sessionID && d.PhaseID == phaseID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRegularDecision(_ context.Context, sessionID, teamID, phaseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := decisionKey(sessionID, teamID, phaseID)
	if d, ok := f.decisions[key]; ok && !d.ImmediatePurchase {
		delete(f.decisions, key)
	}
	return nil
}

func (f *fakeStore) KPIRoundForTeam(_ context.Context, sessionID, teamID string, round int) (KPIRound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.kpis[kpiKey(sessionID, teamID, round)]
	if !ok {
		return KPIRound{}, ErrNotFound
	}
	return k, nil
}

func (f *fakeStore) CreateKPIRound(_ context.Context, k KPIRound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := kpiKey(k.SessionID, k.TeamID, k.Round)
	if _, exists := f.kpis[key]; exists {
		return ErrConflict
	}
	f.kpis[key] = k
	return nil
}

func (f *fakeStore) UpdateKPIRound(_ context.Context, k KPIRound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := kpiKey(k.SessionID, k.TeamID, k.Round)
	if _, exists := f.kpis[key]; !exists {
		return ErrNotFound
	}
	f.kpis[key] = k
	return nil
}

func (f *fakeStore) HasBeenApplied(_ context.Context, kind ReceiptKind, sessionID, teamID, sourceID, optionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[receiptKey(kind, sessionID, teamID, sourceID, optionID)], nil
}

func (f *fakeStore) ApplyDeltasWithReceipt(_ context.Context, kind ReceiptKind, sessionID, teamID, sourceID, optionID string, round int, deltas []KPIDelta) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rkey := receiptKey(kind, sessionID, teamID, sourceID, optionID)
	if f.receipts[rkey] {
		return false, nil
	}
	if f.failKPIWrites {
		return false, ErrTimeout
	}
	key := kpiKey(sessionID, teamID, round)
	k, ok := f.kpis[key]
	if !ok {
		return false, ErrNotFound
	}
	for _, d := range deltas {
		k.Apply(d)
	}
	f.kpis[key] = k
	f.receipts[rkey] = true
	return true, nil
}

func (f *fakeStore) UpsertAdjustment(_ context.Context, a Adjustment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%d|%s|%s|%s", a.SessionID, a.TeamID, a.TargetRound, a.KPI, a.ChallengeID, a.OptionID)
	f.adjustments[key] = a
	return nil
}

func (f *fakeStore) AdjustmentsForRound(_ context.Context, sessionID, teamID string, round int) ([]Adjustment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Adjustment
	for _, a := range f.adjustments {
		if a.SessionID == sessionID && a.TeamID == teamID && a.TargetRound == round {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveDoubleDownResult(_ context.Context, r DoubleDownResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ddResults[r.SessionID+"|"+r.InvestmentID] = r
	return nil
}

func (f *fakeStore) DoubleDownResultFor(_ context.Context, sessionID, investmentID string) (DoubleDownResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ddResults[sessionID+"|"+investmentID]
	if !ok {
		return DoubleDownResult{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) TeamsForInvestment(_ context.Context, sessionID, investmentID string) ([]TeamPick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TeamPick(nil), f.picks[sessionID+"|"+investmentID]...), nil
}

func (f *fakeStore) Broadcast(_ context.Context, sessionID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, fakeBroadcast{SessionID: sessionID, Event: event, Payload: payload})
	return nil
}

func (f *fakeStore) broadcastEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.broadcasts))
	for i, b := range f.broadcasts {
		out[i] = b.Event
	}
	return out
}

func (f *fakeStore) kpiFor(sessionID, teamID string, round int) KPIRound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kpis[kpiKey(sessionID, teamID, round)]
}
