// randomwalk is a minimal external agent speaking the harness NDJSON
// protocol over stdio. It picks a uniformly random action from the
// environment's action space each turn and reports the accumulated reward as
// its score. Useful as a protocol smoke test and as a template for real
// out-of-process agents:
//
//	autoenv run --agent cmd:/path/to/randomwalk
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

type initFrame struct {
	Type        string `json:"type"`
	WorldID     string `json:"world_id"`
	ActionSpace string `json:"action_space"`
	MaxStep     int    `json:"max_step"`
}

type observationFrame struct {
	Type   string  `json:"type"`
	Reward float64 `json:"reward"`
	Done   bool    `json:"done"`
	Step   int     `json:"step"`
}

type replyFrame struct {
	Type   string   `json:"type"`
	Action string   `json:"action,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	Steps  int      `json:"steps,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	out := json.NewEncoder(os.Stdout)

	var init initFrame
	if !in.Scan() {
		return fmt.Errorf("no init frame on stdin")
	}
	if err := json.Unmarshal(in.Bytes(), &init); err != nil || init.Type != "init" {
		return fmt.Errorf("expected an init frame, got %q", in.Text())
	}

	actions := parseActions(init.ActionSpace)
	if len(actions) == 0 {
		out.Encode(replyFrame{Type: "error", Error: "empty action space"})
		return fmt.Errorf("empty action space")
	}

	var (
		total float64
		steps int
	)
	for in.Scan() {
		var obs observationFrame
		if err := json.Unmarshal(in.Bytes(), &obs); err != nil || obs.Type != "observation" {
			continue
		}
		total += obs.Reward
		steps = obs.Step
		if obs.Done {
			return out.Encode(replyFrame{Type: "result", Score: &total, Steps: steps})
		}
		if err := out.Encode(replyFrame{Type: "action", Action: actions[rand.Intn(len(actions))]}); err != nil {
			return err
		}
	}
	if err := in.Err(); err != nil {
		return fmt.Errorf("reading harness frames: %w", err)
	}
	return fmt.Errorf("harness closed the stream mid-run")
}

// parseActions extracts one action per non-empty line of the action space
// text.
func parseActions(space string) []string {
	var actions []string
	for _, line := range strings.Split(space, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			actions = append(actions, line)
		}
	}
	return actions
}
