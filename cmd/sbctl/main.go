package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	cl "simboard/internal/cli"
	"simboard/internal/config"
	"simboard/internal/content"
	"simboard/internal/syncq"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "sbctl",
		Short:        "Simboard host console",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newSessionsCmd(&apiBase),
		newTeamsCmd(&apiBase),
		newSlideCmd(&apiBase),
		newRevealCmd(&apiBase),
		newResetCmd(&apiBase),
		newRollCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newSubmissionsCmd(&apiBase),
		newPhasesCmd(),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a host account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `sbctl login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				HostID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login as a host",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				HostID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newSessionsCmd(apiBase *string) *cobra.Command {
	sessions := &cobra.Command{
		Use:     "sessions",
		Short:   "Manage game sessions",
		Aliases: []string{"session"},
	}

	sessions.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreateSession(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Session created: %v", out["id"]))
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListSessions(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return renderSessions(out)
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "activate [session-id]",
		Short: "Open a session for team joins",
		Args:  cobra.ExactArgs(1),
		RunE:  setStatusRun(apiBase, "active"),
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "end [session-id]",
		Short: "Complete a session and notify every device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).EndSession(ctx, sess.AccessToken, args[0]); err != nil {
				return err
			}
			printSuccess("Session completed.")
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a session and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			confirm, err := promptChoice("Delete "+args[0]+" and all team data", []string{"yes", "no"}, "no")
			if err != nil {
				return err
			}
			if confirm != "yes" {
				printInfo("Aborted.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).DeleteSession(ctx, sess.AccessToken, args[0]); err != nil {
				return err
			}
			printSuccess("Session deleted.")
			return nil
		},
	})

	return sessions
}

func setStatusRun(apiBase *string, status string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sess, err := cl.LoadSession()
		if err != nil {
			return fmt.Errorf("login required: %w", err)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if _, err := newClient(apiBase).SetSessionStatus(ctx, sess.AccessToken, args[0], status); err != nil {
			return err
		}
		printSuccess("Session is now " + status + ".")
		return nil
	}
}

func newTeamsCmd(apiBase *string) *cobra.Command {
	teams := &cobra.Command{
		Use:     "teams",
		Short:   "Manage teams in a session",
		Aliases: []string{"team"},
	}

	teams.AddCommand(&cobra.Command{
		Use:   "add [session-id] [name]",
		Short: "Add a team with a join passcode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			passcode, err := promptRequired("Passcode")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreateTeam(ctx, sess.AccessToken, args[0], args[1], passcode)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Team %v created: %v", out["name"], out["id"]))
			return nil
		},
	})

	teams.AddCommand(&cobra.Command{
		Use:   "list [session-id]",
		Short: "List teams in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListTeams(ctx, args[0])
			if err != nil {
				return err
			}
			return renderTeams(out)
		},
	})

	teams.AddCommand(&cobra.Command{
		Use:   "remove [session-id] [team-id]",
		Short: "Remove a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).DeleteTeam(ctx, sess.AccessToken, args[0], args[1]); err != nil {
				return err
			}
			printSuccess("Team removed.")
			return nil
		},
	})

	return teams
}

func newSlideCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "slide [session-id] [slide]",
		Short: "Move the deck to a slide",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			slide, err := parsePositiveInt(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).AdvanceSlide(ctx, sess.AccessToken, args[0], slide)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: "POST",
					Path:   "/v1/sessions/" + url.PathEscape(args[0]) + "/slide",
					Body:   map[string]any{"slide": slide},
				})
			}
			printSuccess(fmt.Sprintf("Slide is now %v.", out["current_slide"]))
			if phase, ok := content.PhaseForSlide(slide); ok {
				printInfo(fmt.Sprintf("Decision slide: %s (%s, round %d)", phase.ID, phase.Kind, phase.Round))
			}
			return nil
		},
	}
}

func newRevealCmd(apiBase *string) *cobra.Command {
	reveal := &cobra.Command{
		Use:   "reveal",
		Short: "Apply settled outcomes to team KPIs",
	}

	reveal.AddCommand(&cobra.Command{
		Use:   "consequences [session-id] [challenge-id]",
		Short: "Apply a challenge's consequences to every settled team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if err := client.SettleDefaults(ctx, sess.AccessToken, args[0], args[1]); err != nil {
				return err
			}
			if err := client.ApplyConsequences(ctx, sess.AccessToken, args[0], args[1]); err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: "POST",
					Path:   "/v1/sessions/" + url.PathEscape(args[0]) + "/phases/" + url.PathEscape(args[1]) + "/consequences",
					Body:   map[string]any{},
				})
			}
			printSuccess("Consequences applied.")
			return nil
		},
	})

	reveal.AddCommand(&cobra.Command{
		Use:   "payoffs [session-id] [phase-id]",
		Short: "Apply an investment phase's payoffs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			if err := newClient(apiBase).ApplyPayoffs(ctx, sess.AccessToken, args[0], args[1]); err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: "POST",
					Path:   "/v1/sessions/" + url.PathEscape(args[0]) + "/phases/" + url.PathEscape(args[1]) + "/payoffs",
					Body:   map[string]any{},
				})
			}
			printSuccess("Payoffs applied.")
			return nil
		},
	})

	return reveal
}

func newResetCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [session-id] [team-id] [phase-id]",
		Short: "Clear a team's decision so it can resubmit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).ResetDecision(ctx, sess.AccessToken, args[0], args[1], args[2]); err != nil {
				return err
			}
			printSuccess("Decision reset.")
			return nil
		},
	}
}

func newRollCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roll [session-id] [investment-id]",
		Short: "Resolve the double-down roll for an investment",
		Args:  cobra.ExactArgs(2),
	}
	role := cmd.Flags().String("role", "authority", "authority rolls, observer waits for the canonical result")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		sess, err := cl.LoadSession()
		if err != nil {
			return fmt.Errorf("login required: %w", err)
		}
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Minute)
		defer cancel()
		out, err := newClient(apiBase).ResolveDoubleDown(ctx, sess.AccessToken, args[0], args[1], *role)
		if err != nil {
			return err
		}
		return renderRoll(out)
	}
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard [session-id]",
		Short: "Show the session leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, args[0])
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
}

func newSubmissionsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submissions [session-id] [phase-id]",
		Short: "Show which teams have answered on a phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Submissions(ctx, sess.AccessToken, args[0], args[1])
			if err != nil {
				return err
			}
			return renderSubmissions(out)
		},
	}
}

func newPhasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "Show the deck's decision phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderPhases(content.Phases())
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			success := 0
			for _, q := range queue {
				if _, err := client.Do(ctx, q.Method, q.Path, sess.AccessToken, q.Body); err != nil {
					remaining = append(remaining, q)
					printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
					continue
				}
				success++
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", success, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError parks a failed write for `sbctl sync` unless the API
// answered with a structured error, which a replay would only repeat.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "api status") {
		return err
	}
	if qErr := syncq.Push(cmd); qErr != nil {
		return fmt.Errorf("request failed and could not be queued: %v (queue: %v)", err, qErr)
	}
	printWarn(fmt.Sprintf("Offline: queued %s %s for `sbctl sync`.", cmd.Method, cmd.Path))
	return nil
}
