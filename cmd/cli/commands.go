package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/middleware"
	"github.com/spf13/cobra"
)

var (
	seeding    string
	regenerate bool
	randomSeed uint64
	stateQuery []string
	notes      string
	links      []string
)

func init() {
	generateCmd.Flags().StringVar(&seeding, "seeding", "ranked", "Seeding method: random, ranked or manual")
	generateCmd.Flags().BoolVar(&regenerate, "regenerate", false, "Replace an existing bracket")
	generateCmd.Flags().Uint64Var(&randomSeed, "random-seed", 0, "Seed for random seeding")
	matchesCmd.Flags().StringSliceVar(&stateQuery, "state", nil, "Only list matches in these states")
	submitCmd.Flags().StringSliceVar(&links, "link", nil, "Evidence link, repeatable")
	disputeCmd.Flags().StringSliceVar(&links, "link", nil, "Evidence link, repeatable")
	resolveCmd.Flags().StringVar(&notes, "notes", "", "Resolution notes")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(standingsCmd)
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(checkInCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(disputeCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(disputesCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(cancelCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/health", nil)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tournament",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/tournaments", map[string]string{"name": args[0]})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <tournament> <participant> [name]",
	Short: "Register a participant",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[1]
		if len(args) == 3 {
			name = args[2]
		}
		return performRequest(http.MethodPost, "/tournaments/"+args[0]+"/participants", map[string]string{"id": args[1], "name": name})
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank <participant> <score>",
	Short: "Set a participant's ranking score",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid score %q: %w", args[1], err)
		}
		return performRequest(http.MethodPost, "/rankings/"+args[0], map[string]float64{"score": score})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <tournament> <format>",
	Short: "Generate a bracket (single, double, round_robin, swiss, group_playoff)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := bracket.ParseFormat(args[1]); err != nil {
			return err
		}
		return performRequest(http.MethodPost, "/tournaments/"+args[0]+"/bracket", map[string]any{
			"format":      args[1],
			"seeding":     seeding,
			"regenerate":  regenerate,
			"random_seed": randomSeed,
		})
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <tournament>",
	Short: "Show the bracket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/tournaments/"+args[0]+"/bracket", nil)
	},
}

var standingsCmd = &cobra.Command{
	Use:   "standings <tournament>",
	Short: "Show the standings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/tournaments/"+args[0]+"/standings", nil)
	},
}

var matchesCmd = &cobra.Command{
	Use:   "matches <tournament>",
	Short: "List a tournament's matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for _, s := range stateQuery {
			q.Add("state", strings.ToUpper(s))
		}
		endpoint := "/tournaments/" + args[0] + "/matches"
		if len(q) > 0 {
			endpoint += "?" + q.Encode()
		}
		return performRequest(http.MethodGet, endpoint, nil)
	},
}

var checkInCmd = &cobra.Command{
	Use:   "check-in <match>",
	Short: "Check in to a match as --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/matches/"+args[0]+"/check-in", nil)
	},
}

var startCmd = &cobra.Command{
	Use:   "start <match>",
	Short: "Start a ready match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/matches/"+args[0]+"/start", nil)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <match> <score>",
	Short: "Submit a result such as 2-1, slot A first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := parseScore(args[1])
		if err != nil {
			return err
		}
		return performRequest(http.MethodPost, "/matches/"+args[0]+"/results", map[string]any{"score": score, "links": links})
	},
}

var disputeCmd = &cobra.Command{
	Use:   "dispute <match> <note>",
	Short: "Flag a match for review",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/matches/"+args[0]+"/dispute", map[string]any{"note": args[1], "links": links})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <match> <score>",
	Short: "Resolve a dispute with the final score",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := parseScore(args[1])
		if err != nil {
			return err
		}
		return performRequest(http.MethodPost, "/matches/"+args[0]+"/resolve", map[string]any{"score": score, "notes": notes})
	},
}

var disputesCmd = &cobra.Command{
	Use:   "disputes",
	Short: "List open disputes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/disputes", nil)
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance <tournament> <node> <winner>",
	Short: "Advance a participant out of a stalled node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/tournaments/"+args[0]+"/nodes/"+args[1]+"/advance", map[string]string{"winner": args[2]})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <tournament> <reason>",
	Short: "Cancel a tournament and all its open matches",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/tournaments/"+args[0]+"/cancel", map[string]string{"reason": args[1]})
	},
}

func parseScore(raw string) (bracket.Score, error) {
	a, b, ok := strings.Cut(raw, "-")
	if !ok {
		return bracket.Score{}, fmt.Errorf("score must look like A-B, got %q", raw)
	}
	sa, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return bracket.Score{}, fmt.Errorf("invalid score %q: %w", raw, err)
	}
	sb, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return bracket.Score{}, fmt.Errorf("invalid score %q: %w", raw, err)
	}
	score := bracket.Score{A: sa, B: sb}
	return score, score.Validate()
}

func performRequest(method, endpoint string, payload any) error {
	target := host + endpoint
	fmt.Printf("Making request to %s %s\n", method, target)

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(middleware.ActorHeader, actor)
		req.Header.Set(middleware.RoleHeader, role)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Printf("Status Code: %d\n", resp.StatusCode)
	fmt.Println("Response Body:")
	fmt.Println(string(respBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
