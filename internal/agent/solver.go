package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

type solverConfig struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	MaxTurns int    `json:"max_turns"`
	// HistoryWindow caps how many recent steps go into each prompt.
	HistoryWindow int `json:"history_window"`
}

// solverAgent is the built-in LLM-backed policy: it prompts a model with the
// environment instruction, action space, and recent transcript, and plays the
// action the model picks. Token usage from every call is reported to the
// run's cost meter.
type solverAgent struct {
	cfg solverConfig

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error
}

func newSolverAgent(kwargs map[string]any) (any, error) {
	cfg := solverConfig{
		Model:         "gemini-2.5-flash",
		Provider:      "google",
		HistoryWindow: 10,
	}
	if err := decodeKwargs(kwargs, &cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("solver agent needs a model name")
	}
	return &solverAgent{cfg: cfg}, nil
}

func (s *solverAgent) AgentName() string { return s.cfg.Model }

func (s *solverAgent) getClient(ctx context.Context) (*genai.Client, error) {
	s.clientOnce.Do(func() {
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		s.client, s.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return s.client, s.clientErr
}

func (s *solverAgent) Run(ctx context.Context, env world.Environment, info EnvInfo) (*RunResult, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	obs, err := env.Reset(ctx)
	if err != nil {
		return nil, err
	}

	maxTurns := s.cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = info.MaxStep
	}
	if maxTurns <= 0 {
		maxTurns = 50
	}

	var (
		total      float64
		steps      int
		transcript []string
	)
	current := obs.Text
	for turn := 0; turn < maxTurns; turn++ {
		prompt := s.buildPrompt(info, current, transcript)
		resp, err := client.Models.GenerateContent(ctx, s.cfg.Model, genai.Text(prompt), nil)
		if err != nil {
			return nil, fmt.Errorf("model call on turn %d: %w", turn, err)
		}
		if um := resp.UsageMetadata; um != nil {
			cost.Observe(ctx, s.cfg.Model, int(um.PromptTokenCount), int(um.CandidatesTokenCount))
		}

		action := parseAction(resp.Text())
		if action == "" {
			return nil, fmt.Errorf("model returned no action on turn %d", turn)
		}

		res, err := env.Step(ctx, action)
		if err != nil {
			return nil, err
		}
		steps++
		total += res.Reward
		transcript = append(transcript, fmt.Sprintf("step %d: action=%s reward=%.3f", steps, action, res.Reward))
		if len(transcript) > s.cfg.HistoryWindow {
			transcript = transcript[len(transcript)-s.cfg.HistoryWindow:]
		}
		current = res.Observation.Text
		if res.Done {
			break
		}
	}
	return &RunResult{Score: total, Steps: steps}, nil
}

func (s *solverAgent) buildPrompt(info EnvInfo, observation string, transcript []string) string {
	var b strings.Builder
	b.WriteString("You are playing an interactive text environment.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString(info.AgentInstruction)
	b.WriteString("\n\nAvailable actions:\n")
	b.WriteString(info.ActionSpace)
	if len(transcript) > 0 {
		b.WriteString("\n\nRecent steps:\n")
		b.WriteString(strings.Join(transcript, "\n"))
	}
	b.WriteString("\n\nCurrent observation:\n")
	b.WriteString(observation)
	b.WriteString("\n\nReply with exactly one line of the form:\nACTION: <your action>\n")
	return b.String()
}

// parseAction extracts the chosen action from a model reply. It prefers an
// "ACTION:" line and falls back to the last non-empty line.
func parseAction(reply string) string {
	lines := strings.Split(reply, "\n")
	last := ""
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "ACTION:"); ok {
			return strings.TrimSpace(rest)
		}
		last = line
	}
	return last
}
