package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/SNHuan/AutoEnv-Huan/internal/sandbox"
	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

// The external agent protocol is newline-delimited JSON over the agent
// process's stdio. The harness opens the conversation:
//
//	{"type":"init","world_id":...,"agent_instruction":...,"action_space":...,"max_step":N,"kwargs":{...}}
//	{"type":"observation","observation":"...","reward":0,"done":false,"step":0}
//
// and the agent replies with any number of
//
//	{"type":"action","action":"right"}
//
// frames, each answered with an observation frame, until it sends
//
//	{"type":"result","score":1.5}
//
// A result frame without a score is a malformed result and errors the run.

type initFrame struct {
	Type   string         `json:"type"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
	EnvInfo
}

type observationFrame struct {
	Type        string  `json:"type"`
	Observation string  `json:"observation"`
	Reward      float64 `json:"reward"`
	Done        bool    `json:"done"`
	Step        int     `json:"step"`
}

type replyFrame struct {
	Type   string   `json:"type"`
	Action string   `json:"action,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	Steps  int      `json:"steps,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// trailingActionGrace bounds how many action frames are tolerated after the
// environment reports done before the run is failed.
const trailingActionGrace = 10

// externalAgent drives an out-of-process agent over the NDJSON protocol.
// Each run gets a fresh process (or container), so external agents are
// stateless from the harness's point of view.
type externalAgent struct {
	kwargs map[string]any
	dial   func(ctx context.Context) (io.ReadWriteCloser, error)
}

func newCommandAgent(path string, kwargs map[string]any) *externalAgent {
	return &externalAgent{
		kwargs: kwargs,
		dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			return startCommand(ctx, path)
		},
	}
}

func newDockerAgent(image string, kwargs map[string]any) *externalAgent {
	return &externalAgent{
		kwargs: kwargs,
		dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			return sandbox.Start(ctx, &sandbox.Options{Image: image})
		},
	}
}

func (e *externalAgent) Run(ctx context.Context, env world.Environment, info EnvInfo) (*RunResult, error) {
	conn, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting external agent: %w", err)
	}
	defer conn.Close()
	return e.converse(ctx, conn, env, info)
}

func (e *externalAgent) converse(ctx context.Context, conn io.ReadWriter, env world.Environment, info EnvInfo) (*RunResult, error) {
	enc := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if err := enc.Encode(initFrame{Type: "init", Kwargs: e.kwargs, EnvInfo: info}); err != nil {
		return nil, fmt.Errorf("sending init: %w", err)
	}

	obs, err := env.Reset(ctx)
	if err != nil {
		return nil, err
	}
	frame := observationFrame{Type: "observation", Observation: obs.Text}
	steps := 0
	trailing := 0
	for {
		if err := enc.Encode(frame); err != nil {
			return nil, fmt.Errorf("sending observation: %w", err)
		}

		reply, err := readReply(ctx, scanner)
		if err != nil {
			return nil, err
		}

		switch reply.Type {
		case "action":
			if frame.Done {
				trailing++
				if trailing > trailingActionGrace {
					return nil, fmt.Errorf("agent kept acting after termination without reporting a result")
				}
			}
			res, err := env.Step(ctx, reply.Action)
			if err != nil {
				return nil, err
			}
			steps++
			frame = observationFrame{
				Type:        "observation",
				Observation: res.Observation.Text,
				Reward:      res.Reward,
				Done:        res.Done,
				Step:        steps,
			}
		case "result":
			if reply.Score == nil {
				return nil, fmt.Errorf("agent result is missing the score field")
			}
			return &RunResult{Score: *reply.Score, Steps: steps}, nil
		case "error":
			return nil, fmt.Errorf("agent reported failure: %s", reply.Error)
		default:
			return nil, fmt.Errorf("unexpected frame type %q from agent", reply.Type)
		}
	}
}

func readReply(ctx context.Context, scanner *bufio.Scanner) (*replyFrame, error) {
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var reply replyFrame
		if err := json.Unmarshal([]byte(line), &reply); err != nil {
			// Agents may emit stray diagnostics on stdout; skip anything
			// that is not a protocol frame.
			log.Debug().Str("line", line).Msg("skipping non-protocol agent output")
			continue
		}
		return &reply, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading from agent: %w", err)
	}
	return nil, fmt.Errorf("agent closed its stream before reporting a result")
}

// cmdConn joins a subprocess's stdin/stdout into one stream and reaps the
// process on close.
type cmdConn struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   io.ReadCloser
}

func startCommand(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	cmd := exec.CommandContext(ctx, path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}
	return &cmdConn{cmd: cmd, stdin: stdin, out: stdout}, nil
}

func (c *cmdConn) Read(p []byte) (int, error)  { return c.out.Read(p) }
func (c *cmdConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *cmdConn) Close() error {
	c.stdin.Close()
	c.out.Close()
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}
