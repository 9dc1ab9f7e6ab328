// Package sandbox runs external agents inside containers. The harness
// attaches to the container's stdio and speaks the NDJSON agent protocol
// over it, so containerized agents behave exactly like subprocess agents
// with the host filesystem and network policy kept out of reach.
package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

type Options struct {
	Image   string
	Command []string
	Env     map[string]string
}

// Session is one attached container. Reads and writes go through the
// container's stdio; Close kills and removes the container.
type Session struct {
	cli         *client.Client
	containerID string
	hijack      client.ContainerAttachResult
}

// Start creates, attaches to, and starts a container for one agent run.
func Start(ctx context.Context, opts *Options) (*Session, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	envSlice := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	initTrue := true
	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:       opts.Image,
			Cmd:         opts.Command,
			Env:         envSlice,
			Tty:         true,
			OpenStdin:   true,
			StdinOnce:   true,
			AttachStdin: true,
			Labels:      map[string]string{"autoenv": "true"},
		},
		HostConfig: &container.HostConfig{
			Init: &initTrue,
		},
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID

	hijack, err := cli.ContainerAttach(ctx, containerID, client.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("attaching to container: %w", err)
	}

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		hijack.Close()
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("starting container: %w", err)
	}

	return &Session{cli: cli, containerID: containerID, hijack: hijack}, nil
}

func (s *Session) Read(p []byte) (int, error) {
	return s.hijack.Reader.Read(p)
}

func (s *Session) Write(p []byte) (int, error) {
	return s.hijack.Conn.Write(p)
}

// Close tears the session down. Removal is forced; a container that already
// exited is removed all the same.
func (s *Session) Close() error {
	s.hijack.Close()
	s.cli.ContainerKill(context.Background(), s.containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
	s.cli.ContainerRemove(context.Background(), s.containerID, client.ContainerRemoveOptions{Force: true})
	return s.cli.Close()
}

var _ io.ReadWriteCloser = (*Session)(nil)
