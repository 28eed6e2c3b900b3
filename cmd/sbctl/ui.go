package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"simboard/internal/content"
	"simboard/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func parsePositiveInt(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 1 {
		return 0, fmt.Errorf("expected a positive number, got %q", raw)
	}
	return v, nil
}

type sessionsPayload struct {
	Sessions []game.Session `json:"sessions"`
}

type teamsPayload struct {
	Teams []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"teams"`
}

type leaderboardPayload struct {
	Rows []game.LeaderboardRow `json:"rows"`
}

func reparse(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func renderSessions(out map[string]any) error {
	var payload sessionsPayload
	if err := reparse(out, &payload); err != nil {
		return err
	}
	if len(payload.Sessions) == 0 {
		printInfo("No sessions yet. Run `sbctl sessions create`.")
		return nil
	}
	accent.Println("SESSIONS")
	for _, s := range payload.Sessions {
		fmt.Printf("  %s  status=%s  slide=%d  created=%s\n",
			s.ID, s.Status, s.CurrentSlide, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func renderTeams(out map[string]any) error {
	var payload teamsPayload
	if err := reparse(out, &payload); err != nil {
		return err
	}
	if len(payload.Teams) == 0 {
		printInfo("No teams yet. Run `sbctl teams add`.")
		return nil
	}
	accent.Println("TEAMS")
	for _, t := range payload.Teams {
		fmt.Printf("  %-24s %s\n", t.Name, t.ID)
	}
	return nil
}

func renderLeaderboard(out map[string]any) error {
	var payload leaderboardPayload
	if err := reparse(out, &payload); err != nil {
		return err
	}
	accent.Println("LEADERBOARD")
	for _, row := range payload.Rows {
		fmt.Printf("  %2d. %-24s net income %d\n", row.Rank, row.TeamName, row.NetIncomeSum)
	}
	return nil
}

type submissionsPayload struct {
	PhaseID   string `json:"phase_id"`
	Submitted int    `json:"submitted"`
	Total     int    `json:"total"`
	Teams     []struct {
		TeamName  string `json:"team_name"`
		Submitted bool   `json:"submitted"`
	} `json:"teams"`
}

func renderSubmissions(out map[string]any) error {
	var payload submissionsPayload
	if err := reparse(out, &payload); err != nil {
		return err
	}
	accent.Printf("SUBMISSIONS %s: %d of %d in\n", payload.PhaseID, payload.Submitted, payload.Total)
	for _, t := range payload.Teams {
		if t.Submitted {
			success.Printf("  %-24s submitted\n", t.TeamName)
		} else {
			warn.Printf("  %-24s waiting\n", t.TeamName)
		}
	}
	return nil
}

func renderRoll(out map[string]any) error {
	if rolled, ok := out["rolled"].(bool); ok && !rolled {
		printInfo("No team doubled down on this investment; nothing to roll.")
		return nil
	}
	var result game.DoubleDownResult
	if err := reparse(out, &result); err != nil {
		return err
	}
	accent.Printf("DICE: %d + %d = %d\n", result.Die1, result.Die2, result.Total)
	switch {
	case result.BoostPercent == 0:
		danger.Println("Boost: 0% (snake eyes, payoff forfeited)")
	case result.BoostPercent == 100:
		success.Println("Boost: 100% (full payoff)")
	default:
		warn.Printf("Boost: %d%%\n", result.BoostPercent)
	}
	if len(result.TeamNames) > 0 {
		fmt.Printf("Teams: %s\n", strings.Join(result.TeamNames, ", "))
	}
	for _, d := range result.Deltas {
		fmt.Printf("  %-8s %+d\n", d.KPI, d.Change)
	}
	return nil
}

func renderPhases(phases []content.Phase) {
	accent.Println("DECISION PHASES")
	for _, p := range phases {
		extra := ""
		if p.Budget > 0 {
			extra = fmt.Sprintf("  budget=%d", p.Budget)
		}
		if p.ImmediatePurchase {
			extra += "  immediate"
		}
		if p.MultiSelect {
			extra += "  multi-select"
		}
		fmt.Printf("  slide %2d  round %d  %-18s %s%s\n", p.SlideID, p.Round, p.ID, p.Kind, extra)
	}
}
