package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"simboard/internal/auth"
	"simboard/internal/config"
	"simboard/internal/content"
	"simboard/internal/game"
	"simboard/internal/realtime"
	"simboard/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const (
	hostContextKey contextKey = "host"
	teamContextKey contextKey = "team"
)

type HostContext struct {
	HostID string
	Email  string
	Token  string
}

type TeamContext struct {
	SessionID string
	TeamID    string
	Name      string
}

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	auth    *auth.Client
	gateway *store.Gateway
	settle  *game.SettlementEngine
	apply   *game.ApplicationEngine
	dice    *game.DoubleDownResolver
	bus     *realtime.Bus
	mux     *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient *auth.Client, gateway *store.Gateway, settle *game.SettlementEngine, apply *game.ApplicationEngine, dice *game.DoubleDownResolver, bus *realtime.Bus) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		auth:    authClient,
		gateway: gateway,
		settle:  settle,
		apply:   apply,
		dice:    dice,
		bus:     bus,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		// Host surface: bearer token from the auth provider.
		r.Group(func(r chi.Router) {
			r.Use(s.hostMiddleware)
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions", s.handleListSessions)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
			r.Post("/sessions/{id}/slide", s.handleAdvanceSlide)
			r.Post("/sessions/{id}/status", s.handleSessionStatus)
			r.Post("/sessions/{id}/end", s.handleEndSession)

			r.Post("/sessions/{id}/teams", s.handleCreateTeam)
			r.Put("/sessions/{id}/teams/{team_id}", s.handleUpdateTeam)
			r.Delete("/sessions/{id}/teams/{team_id}", s.handleDeleteTeam)

			r.Post("/sessions/{id}/phases/{phase_id}/defaults", s.handleSettleDefaults)
			r.Post("/sessions/{id}/phases/{phase_id}/consequences", s.handleApplyConsequences)
			r.Post("/sessions/{id}/phases/{phase_id}/payoffs", s.handleApplyPayoffs)
			r.Post("/sessions/{id}/rounds/{round}/start", s.handleStartRound)
			r.Delete("/sessions/{id}/teams/{team_id}/decisions/{phase_id}", s.handleResetDecision)
			r.Get("/sessions/{id}/phases/{phase_id}/submissions", s.handleSubmissions)

			r.Post("/sessions/{id}/double-down/{investment_id}/resolve", s.handleResolveDoubleDown)
			r.Get("/sessions/{id}/receipts", s.handleReceipts)
		})

		// Shared reads and the team surface: shared passcode, no accounts.
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/teams", s.handleListTeams)
		r.Get("/sessions/{id}/leaderboard", s.handleLeaderboard)
		r.Get("/sessions/{id}/double-down/{investment_id}", s.handleGetDoubleDown)

		r.Post("/sessions/{id}/join", s.handleJoin)
		r.Group(func(r chi.Router) {
			r.Use(s.teamMiddleware)
			r.Get("/sessions/{id}/view", s.handleTeamView)
			r.Post("/sessions/{id}/decisions", s.handleSubmitDecision)
			r.Get("/sessions/{id}/kpis/{round}", s.handleTeamKPIs)
		})
	})
}

func (s *Server) hostMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		host, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), hostContextKey, HostContext{
			HostID: host.ID,
			Email:  host.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// teamMiddleware authenticates a team device with the session-scoped
// passcode headers set at join time.
func (s *Server) teamMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		teamID := strings.TrimSpace(r.Header.Get("X-Team-ID"))
		passcode := strings.TrimSpace(r.Header.Get("X-Team-Passcode"))
		if teamID == "" || passcode == "" {
			writeError(w, http.StatusUnauthorized, "missing team credentials")
			return
		}
		team, err := s.gateway.AuthenticateTeam(r.Context(), sessionID, teamID, passcode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), teamContextKey, TeamContext{
			SessionID: sessionID,
			TeamID:    team.ID,
			Name:      team.Name,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func hostFromContext(ctx context.Context) (HostContext, error) {
	host, ok := ctx.Value(hostContextKey).(HostContext)
	if !ok || host.HostID == "" {
		return HostContext{}, errors.New("missing host context")
	}
	return host, nil
}

func teamFromContext(ctx context.Context) (TeamContext, error) {
	team, ok := ctx.Value(teamContextKey).(TeamContext)
	if !ok || team.TeamID == "" {
		return TeamContext{}, errors.New("missing team context")
	}
	return team, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	host, err := hostFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	session, err := s.gateway.CreateSession(r.Context(), game.Session{
		ID:           uuid.NewString(),
		HostID:       host.HostID,
		Status:       game.SessionDraft,
		CurrentSlide: 1,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	host, err := hostFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sessions, err := s.gateway.SessionsByHost(r.Context(), host.HostID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.gateway.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	host, err := hostFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.gateway.DeleteSession(r.Context(), chi.URLParam(r, "id"), host.HostID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleAdvanceSlide moves the deck pointer. Leaving a challenge slide
// first commits defaults for silent teams, and entering a new round
// initializes every team's KPI record with pending adjustments folded in.
func (s *Server) handleAdvanceSlide(w http.ResponseWriter, r *http.Request) {
	host, err := hostFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sessionID := chi.URLParam(r, "id")
	var in struct {
		Slide int `json:"slide"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := s.gateway.Session(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if phase, ok := content.PhaseForSlide(current.CurrentSlide); ok && in.Slide > current.CurrentSlide {
		if err := s.settle.SettleDefaults(r.Context(), sessionID, phase.ID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	session, err := s.gateway.UpdateSessionSlide(r.Context(), sessionID, host.HostID, in.Slide)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	oldRound := content.RoundForSlide(current.CurrentSlide)
	newRound := content.RoundForSlide(in.Slide)
	if newRound > oldRound {
		if err := s.apply.StartRoundForSession(r.Context(), sessionID, newRound); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	host, err := hostFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sessionID := chi.URLParam(r, "id")
	var in struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := game.SessionStatus(in.Status)
	switch status {
	case game.SessionDraft, game.SessionActive, game.SessionCompleted:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", in.Status))
		return
	}
	session, err := s.gateway.UpdateSessionStatus(r.Context(), sessionID, host.HostID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if status == game.SessionActive {
		if err := s.apply.StartRoundForSession(r.Context(), sessionID, 1); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	host, err := hostFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sessionID := chi.URLParam(r, "id")
	session, err := s.gateway.UpdateSessionStatus(r.Context(), sessionID, host.HostID, game.SessionCompleted)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.bus.Broadcast(r.Context(), sessionID, realtime.EventSessionEnded, session); err != nil {
		s.log.Warn("session-ended broadcast failed", "session", sessionID, "err", err)
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name     string `json:"name"`
		Passcode string `json:"passcode"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Passcode) == "" {
		writeError(w, http.StatusBadRequest, "name and passcode are required")
		return
	}
	team, err := s.gateway.CreateTeam(r.Context(), game.Team{
		ID:        uuid.NewString(),
		SessionID: chi.URLParam(r, "id"),
		Name:      strings.TrimSpace(in.Name),
		Passcode:  strings.TrimSpace(in.Passcode),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.gateway.TeamsBySession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// The passcode stays between the host and the team.
	type publicTeam struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id"`
		Name      string `json:"name"`
	}
	out := make([]publicTeam, len(teams))
	for i, t := range teams {
		out[i] = publicTeam{ID: t.ID, SessionID: t.SessionID, Name: t.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": out})
}

func (s *Server) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name     string `json:"name"`
		Passcode string `json:"passcode"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.gateway.UpdateTeam(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "team_id"), strings.TrimSpace(in.Name), strings.TrimSpace(in.Passcode))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.gateway.DeleteTeam(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "team_id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSettleDefaults(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	err := s.settle.SettleDefaults(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "phase_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleApplyConsequences(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	err := s.apply.ApplyConsequencesForPhase(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "phase_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleApplyPayoffs(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	err := s.apply.ApplyPayoffs(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "phase_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round")
		return
	}
	if err := s.apply.StartRoundForSession(r.Context(), chi.URLParam(r, "id"), round); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResetDecision(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	err := s.settle.Reset(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "team_id"), chi.URLParam(r, "phase_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleSubmissions tells the host who has answered on a phase, so the deck
// can show "3 of 5 teams in" before the slide advances.
func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sessionID := chi.URLParam(r, "id")
	phaseID := chi.URLParam(r, "phase_id")
	if _, ok := content.PhaseByID(phaseID); !ok {
		writeDomainError(w, game.ErrUnknownPhase)
		return
	}

	teams, err := s.gateway.TeamsBySession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settled, err := s.gateway.DecisionsForPhase(r.Context(), sessionID, phaseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	submitted := make(map[string]bool, len(settled))
	for _, d := range settled {
		submitted[d.TeamID] = true
	}

	type row struct {
		TeamID    string `json:"team_id"`
		TeamName  string `json:"team_name"`
		Submitted bool   `json:"submitted"`
	}
	rows := make([]row, len(teams))
	count := 0
	for i, t := range teams {
		rows[i] = row{TeamID: t.ID, TeamName: t.Name, Submitted: submitted[t.ID]}
		if submitted[t.ID] {
			count++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"phase_id":  phaseID,
		"submitted": count,
		"total":     len(teams),
		"teams":     rows,
	})
}

func (s *Server) handleResolveDoubleDown(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := game.Role(in.Role)
	switch role {
	case game.RoleAuthority, game.RoleObserver:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown role %q", in.Role))
		return
	}
	result, err := s.dice.Resolve(r.Context(), role, chi.URLParam(r, "id"), chi.URLParam(r, "investment_id"))
	if errors.Is(err, game.ErrNoRoll) {
		writeJSON(w, http.StatusOK, map[string]any{"rolled": false})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetDoubleDown(w http.ResponseWriter, r *http.Request) {
	result, err := s.gateway.DoubleDownResultFor(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "investment_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if _, err := hostFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	kind := game.ReceiptKind(r.URL.Query().Get("kind"))
	receipts, err := s.gateway.ReceiptsBySession(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.gateway.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamID   string `json:"team_id"`
		Passcode string `json:"passcode"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := chi.URLParam(r, "id")
	team, err := s.gateway.AuthenticateTeam(r.Context(), sessionID, strings.TrimSpace(in.TeamID), strings.TrimSpace(in.Passcode))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.gateway.Session(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"team_id":       team.ID,
		"team_name":     team.Name,
		"session":       session,
		"current_round": content.RoundForSlide(session.CurrentSlide),
	})
}

// handleTeamView is the poll-fallback read: the full snapshot a team device
// needs to render, in one request.
func (s *Server) handleTeamView(w http.ResponseWriter, r *http.Request) {
	team, err := teamFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	session, err := s.gateway.Session(r.Context(), team.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	round := content.RoundForSlide(session.CurrentSlide)
	phase, onDecision := content.PhaseForSlide(session.CurrentSlide)

	submitted := false
	if onDecision {
		_, err := s.gateway.DecisionForTeamPhase(r.Context(), team.SessionID, team.TeamID, phase.ID)
		switch {
		case err == nil:
			submitted = true
		case errors.Is(err, game.ErrNotFound):
		default:
			writeDomainError(w, err)
			return
		}
	}

	var kpis game.KPIRound
	k, err := s.gateway.KPIRoundForTeam(r.Context(), team.SessionID, team.TeamID, round)
	switch {
	case err == nil:
		kpis = k
	case errors.Is(err, game.ErrNotFound):
	default:
		writeDomainError(w, err)
		return
	}

	out := map[string]any{
		"session":           session,
		"round":             round,
		"is_decision_slide": onDecision,
		"submitted":         submitted,
		"kpis":              kpis,
	}
	if onDecision {
		out["phase_id"] = phase.ID
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	team, err := teamFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		PhaseID string          `json:"phase_id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := game.UnmarshalPayload(in.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settle.Submit(r.Context(), game.SubmitInput{
		SessionID: team.SessionID,
		TeamID:    team.TeamID,
		PhaseID:   in.PhaseID,
		Payload:   payload,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTeamKPIs(w http.ResponseWriter, r *http.Request) {
	team, err := teamFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round")
		return
	}
	kpis, err := s.gateway.KPIRoundForTeam(r.Context(), team.SessionID, team.TeamID, round)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrTimeout), errors.Is(err, game.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, game.ErrResultPending):
		writeError(w, http.StatusAccepted, err.Error())
	case errors.Is(err, game.ErrBudgetExceeded),
		errors.Is(err, game.ErrUnknownOption),
		errors.Is(err, game.ErrInvalidCombination),
		errors.Is(err, game.ErrNotEligible),
		errors.Is(err, game.ErrUnknownPhase),
		errors.Is(err, game.ErrPayloadMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrSessionNotActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
