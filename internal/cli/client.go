package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"simboard/internal/auth"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", accessToken, map[string]any{}, &out)
	return out, err
}

func (c *Client) ListSessions(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions", accessToken, nil, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), "", nil, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, accessToken, sessionID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), accessToken, nil, nil)
}

func (c *Client) AdvanceSlide(ctx context.Context, accessToken, sessionID string, slide int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/slide", accessToken, map[string]any{
		"slide": slide,
	}, &out)
	return out, err
}

func (c *Client) SetSessionStatus(ctx context.Context, accessToken, sessionID, status string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/status", accessToken, map[string]any{
		"status": status,
	}, &out)
	return out, err
}

func (c *Client) EndSession(ctx context.Context, accessToken, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/end", accessToken, map[string]any{}, &out)
	return out, err
}

func (c *Client) CreateTeam(ctx context.Context, accessToken, sessionID, name, passcode string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/teams", accessToken, map[string]any{
		"name":     name,
		"passcode": passcode,
	}, &out)
	return out, err
}

func (c *Client) ListTeams(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/teams", "", nil, &out)
	return out, err
}

func (c *Client) DeleteTeam(ctx context.Context, accessToken, sessionID, teamID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID)+"/teams/"+url.PathEscape(teamID), accessToken, nil, nil)
}

func (c *Client) SettleDefaults(ctx context.Context, accessToken, sessionID, phaseID string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/phases/"+url.PathEscape(phaseID)+"/defaults", accessToken, map[string]any{}, nil)
}

func (c *Client) ApplyConsequences(ctx context.Context, accessToken, sessionID, phaseID string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/phases/"+url.PathEscape(phaseID)+"/consequences", accessToken, map[string]any{}, nil)
}

func (c *Client) ApplyPayoffs(ctx context.Context, accessToken, sessionID, phaseID string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/phases/"+url.PathEscape(phaseID)+"/payoffs", accessToken, map[string]any{}, nil)
}

func (c *Client) StartRound(ctx context.Context, accessToken, sessionID string, round int) error {
	return c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/rounds/%d/start", url.PathEscape(sessionID), round), accessToken, map[string]any{}, nil)
}

func (c *Client) Submissions(ctx context.Context, accessToken, sessionID, phaseID string) (map[string]any, error) {
	var out map[string]any
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/phases/" + url.PathEscape(phaseID) + "/submissions"
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out)
	return out, err
}

func (c *Client) ResetDecision(ctx context.Context, accessToken, sessionID, teamID, phaseID string) error {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/teams/" + url.PathEscape(teamID) + "/decisions/" + url.PathEscape(phaseID)
	return c.jsonRequest(ctx, http.MethodDelete, path, accessToken, nil, nil)
}

func (c *Client) ResolveDoubleDown(ctx context.Context, accessToken, sessionID, investmentID, role string) (map[string]any, error) {
	var out map[string]any
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/double-down/" + url.PathEscape(investmentID) + "/resolve"
	err := c.jsonRequest(ctx, http.MethodPost, path, accessToken, map[string]any{"role": role}, &out)
	return out, err
}

func (c *Client) GetDoubleDown(ctx context.Context, sessionID, investmentID string) (map[string]any, error) {
	var out map[string]any
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/double-down/" + url.PathEscape(investmentID)
	err := c.jsonRequest(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/leaderboard", "", nil, &out)
	return out, err
}

func (c *Client) Receipts(ctx context.Context, accessToken, sessionID, kind string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/receipts?kind="+url.QueryEscape(kind), accessToken, nil, &out)
	return out, err
}

// Do replays an arbitrary queued request. The sync command uses it so the
// queue format stays a plain (method, path, body) triple.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
