package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"simboard/internal/content"
	"simboard/internal/realtime"
)

// TeamView is the local state a team device renders from. Snapshots are
// value copies; mutation happens only inside the syncer.
type TeamView struct {
	Status          realtime.Status `json:"status"`
	SessionStatus   SessionStatus   `json:"session_status"`
	CurrentSlide    int             `json:"current_slide"`
	Round           int             `json:"round"`
	PhaseID         string          `json:"phase_id,omitempty"`
	IsDecisionSlide bool            `json:"is_decision_slide"`
	Submitted       bool            `json:"submitted"`
	KPIs            KPIRound        `json:"kpis"`
}

// TeamSyncer keeps one team's view converged with the host over a single
// session-channel subscription, multiplexing slide changes, decision resets
// and KPI updates. While the channel is anything but connected it falls
// back to polling the store, so a dead channel degrades to latency, never
// to divergence.
type TeamSyncer struct {
	sessions  SessionStore
	decisions DecisionStore
	kpis      KPIStore
	bus       Subscriber
	log       *slog.Logger

	sessionID string
	teamID    string
	PollEvery time.Duration

	mu     sync.Mutex
	view   TeamView
	cancel func()
	stop   chan struct{}
	done   chan struct{}
}

func NewTeamSyncer(sessions SessionStore, decisions DecisionStore, kpis KPIStore, bus Subscriber, log *slog.Logger, sessionID, teamID string) *TeamSyncer {
	return &TeamSyncer{
		sessions:  sessions,
		decisions: decisions,
		kpis:      kpis,
		bus:       bus,
		log:       log,
		sessionID: sessionID,
		teamID:    teamID,
		PollEvery: 10 * time.Second,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start loads the initial view, opens the channel subscription and launches
// the fallback poller.
func (s *TeamSyncer) Start(ctx context.Context) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}
	cancel, err := s.bus.Subscribe(ctx, s.sessionID, realtime.Handlers{
		OnRowChange: s.handleRowChange,
		OnStatus:    s.handleStatus,
	})
	if err != nil {
		return err
	}
	s.cancel = cancel
	go s.pollLoop(ctx)
	return nil
}

func (s *TeamSyncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	close(s.stop)
	<-s.done
}

// View returns a snapshot of the current local state.
func (s *TeamSyncer) View() TeamView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *TeamSyncer) pollLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		connected := s.view.Status == realtime.StatusConnected
		s.mu.Unlock()
		if connected {
			continue
		}
		if err := s.refresh(ctx); err != nil {
			s.log.Warn("fallback poll failed", "session", s.sessionID, "team", s.teamID, "err", err)
		}
	}
}

// refresh re-fetches the full view from the store. Used at startup and by
// the fallback poller.
func (s *TeamSyncer) refresh(ctx context.Context) error {
	sess, err := s.sessions.Session(ctx, s.sessionID)
	if err != nil {
		return err
	}

	slide := sess.CurrentSlide
	round := content.RoundForSlide(slide)
	phase, onDecision := content.PhaseForSlide(slide)

	submitted := false
	if onDecision {
		_, err := s.decisions.DecisionForTeamPhase(ctx, s.sessionID, s.teamID, phase.ID)
		switch {
		case err == nil:
			submitted = true
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}
	}

	var kpis KPIRound
	k, err := s.kpis.KPIRoundForTeam(ctx, s.sessionID, s.teamID, round)
	switch {
	case err == nil:
		kpis = k
	case errors.Is(err, ErrNotFound):
	default:
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.SessionStatus = sess.Status
	s.view.CurrentSlide = slide
	s.view.Round = round
	s.view.IsDecisionSlide = onDecision
	if onDecision {
		s.view.PhaseID = phase.ID
	} else {
		s.view.PhaseID = ""
	}
	s.view.Submitted = submitted
	s.view.KPIs = kpis
	return nil
}

func (s *TeamSyncer) handleStatus(st realtime.Status) {
	s.mu.Lock()
	s.view.Status = st
	s.mu.Unlock()
	if st != realtime.StatusConnected {
		s.log.Warn("channel status changed", "session", s.sessionID, "team", s.teamID, "status", string(st))
	}
}

// decisionRow is the slice of a decision row the syncer cares about.
type decisionRow struct {
	TeamID  string `json:"team_id"`
	PhaseID string `json:"phase_id"`
}

func (s *TeamSyncer) handleRowChange(rc realtime.RowChange) {
	if rc.SessionID != s.sessionID {
		return
	}
	switch rc.Table {
	case realtime.TableSessions:
		if rc.Op == realtime.OpUpdate {
			s.applySessionUpdate(rc.Payload)
		}
	case realtime.TableDecisions:
		s.applyDecisionChange(rc.Op, rc.Payload)
	case realtime.TableRoundData:
		s.applyRoundDataChange(rc.Op, rc.Payload)
	}
}

// applySessionUpdate moves the local slide pointer. Updates apply
// last-write-wins: the host's latest slide always supersedes whatever the
// team was looking at.
func (s *TeamSyncer) applySessionUpdate(raw json.RawMessage) {
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.log.Warn("bad session payload", "session", s.sessionID, "err", err)
		return
	}

	s.mu.Lock()
	slideChanged := sess.CurrentSlide != s.view.CurrentSlide
	s.view.SessionStatus = sess.Status
	s.view.CurrentSlide = sess.CurrentSlide
	s.view.Round = content.RoundForSlide(sess.CurrentSlide)
	phase, onDecision := content.PhaseForSlide(sess.CurrentSlide)
	s.view.IsDecisionSlide = onDecision
	if onDecision {
		s.view.PhaseID = phase.ID
	} else {
		s.view.PhaseID = ""
	}
	if slideChanged {
		// Submission state belongs to the phase, not the device.
		s.view.Submitted = false
	}
	s.mu.Unlock()

	if slideChanged && onDecision {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := s.decisions.DecisionForTeamPhase(ctx, s.sessionID, s.teamID, phase.ID)
		if err == nil {
			s.mu.Lock()
			if s.view.PhaseID == phase.ID {
				s.view.Submitted = true
			}
			s.mu.Unlock()
		} else if !errors.Is(err, ErrNotFound) {
			s.log.Warn("decision lookup failed", "session", s.sessionID, "team", s.teamID, "phase", phase.ID, "err", err)
		}
	}
}

// applyDecisionChange tracks this team's submission on the current phase. A
// DELETE is a host-initiated reset and reopens the form.
func (s *TeamSyncer) applyDecisionChange(op string, raw json.RawMessage) {
	var row decisionRow
	if err := json.Unmarshal(raw, &row); err != nil {
		s.log.Warn("bad decision payload", "session", s.sessionID, "err", err)
		return
	}
	if row.TeamID != s.teamID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if row.PhaseID != s.view.PhaseID || s.view.PhaseID == "" {
		return
	}
	switch op {
	case realtime.OpDelete:
		s.view.Submitted = false
	case realtime.OpInsert, realtime.OpUpdate:
		s.view.Submitted = true
	}
}

// applyRoundDataChange swaps in the fresh KPI snapshot as soon as an
// application engine commits it, independent of slide changes.
func (s *TeamSyncer) applyRoundDataChange(op string, raw json.RawMessage) {
	var k KPIRound
	if err := json.Unmarshal(raw, &k); err != nil {
		s.log.Warn("bad round-data payload", "session", s.sessionID, "err", err)
		return
	}
	if k.TeamID != s.teamID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if k.Round != s.view.Round {
		return
	}
	if op == realtime.OpDelete {
		s.view.KPIs = KPIRound{}
		return
	}
	s.view.KPIs = k
}
