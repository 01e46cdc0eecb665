package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/core/services"
)

// fakeCompute serves a fixed set of containers, all owned by whoever asks.
type fakeCompute struct {
	mu         sync.Mutex
	containers map[string]domain.Container
	lastCreate services.CreateRequest
	createErr  error
	stopped    []string
	// streams feeds StreamLogs; a missing entry streams the static logs.
	streams map[string]io.ReadCloser
}

func newFakeCompute(cs ...domain.Container) *fakeCompute {
	f := &fakeCompute{containers: map[string]domain.Container{}}
	for _, c := range cs {
		f.containers[c.ID] = c
	}
	return f
}

func (f *fakeCompute) lookup(id string) (domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		return c, nil
	}
	for _, c := range f.containers {
		if c.Name != "" && c.Name == id {
			return c, nil
		}
	}
	return domain.Container{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
}

func (f *fakeCompute) List(ctx context.Context, user domain.User) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCompute) Create(ctx context.Context, user domain.User, req services.CreateRequest) (domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = req
	if f.createErr != nil {
		return domain.Container{}, f.createErr
	}
	if req.Image == "" && req.RepoURL == "" {
		return domain.Container{}, domain.ErrImageRequired
	}
	return domain.Container{ID: "new000000001", Name: "aether_dev_" + req.Image, Image: req.Image, State: domain.StateRunning}, nil
}

func (f *fakeCompute) Stop(ctx context.Context, user domain.User, id string) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeCompute) GetLogs(ctx context.Context, user domain.User, id string) (domain.ContainerLogs, error) {
	c, err := f.lookup(id)
	if err != nil {
		return domain.ContainerLogs{}, err
	}
	return domain.ContainerLogs{ID: c.ID, Name: c.Name, Logs: "booted\n"}, nil
}

func (f *fakeCompute) StreamLogs(ctx context.Context, user domain.User, id string) (io.ReadCloser, error) {
	c, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if rc, ok := f.streams[c.ID]; ok {
		return rc, nil
	}
	return io.NopCloser(strings.NewReader("booted\nready\n")), nil
}

func (f *fakeCompute) Exec(ctx context.Context, user domain.User, id, command string) (domain.ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return domain.ExecResult{}, domain.ErrEmptyCommand
	}
	c, err := f.lookup(id)
	if err != nil {
		return domain.ExecResult{}, err
	}
	if !c.IsRunning() {
		return domain.ExecResult{}, domain.ErrContainerNotRunning
	}
	if command == "boom" {
		return domain.ExecResult{}, fmt.Errorf("exec create: daemon unavailable")
	}
	return domain.ExecResult{Command: command, Output: "out:" + command}, nil
}

func (f *fakeCompute) Directory(user domain.User) ports.ContainerDirectory {
	return computeDirectory{f}
}

type computeDirectory struct{ f *fakeCompute }

func (d computeDirectory) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	return d.f.lookup(id)
}

// echoTransport answers every command immediately.
type echoTransport struct{}

func (echoTransport) Submit(ctx context.Context, containerID, command string) (string, error) {
	if command == "fail" {
		return "", domain.NewExecError(domain.ErrTransport, 500, "boom", nil)
	}
	return containerID + ":" + command + "\n", nil
}

// fakeConn feeds queued client frames and records server frames.
type fakeConn struct {
	in     chan []byte
	hangup sync.Once

	mu  sync.Mutex
	out []ServerFrame
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 32)}
}

func (c *fakeConn) push(f ClientFrame) {
	data, _ := json.Marshal(f)
	c.in <- data
}

// hangUp ends the client side; later reads fail like a closed socket.
func (c *fakeConn) hangUp() {
	c.hangup.Do(func() { close(c.in) })
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, f)
	return nil
}

func (c *fakeConn) output(container string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for _, f := range c.out {
		if f.Type == FrameOutput && f.Container == container {
			b.WriteString(f.Data)
		}
	}
	return b.String()
}

func (c *fakeConn) frames(typ string) []ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ServerFrame
	for _, f := range c.out {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) errorMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []string
	for _, f := range c.out {
		if f.Type == FrameError {
			msgs = append(msgs, f.Message)
		}
	}
	return msgs
}

// fakeRuntime is the slice of ports.ContainerService the proxy reads.
type fakeRuntime struct {
	containers []domain.Container
}

func (r *fakeRuntime) ListContainers(ctx context.Context) ([]domain.Container, error) {
	return r.containers, nil
}

func (r *fakeRuntime) InspectContainer(ctx context.Context, id string) (domain.Container, error) {
	return domain.Container{}, domain.ErrContainerNotFound
}

func (r *fakeRuntime) StartContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	return "", nil
}

func (r *fakeRuntime) StopContainer(ctx context.Context, id string) error { return nil }

func (r *fakeRuntime) RemoveContainer(ctx context.Context, id string) error { return nil }

func (r *fakeRuntime) GetContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (r *fakeRuntime) FollowContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (r *fakeRuntime) ExecCommand(ctx context.Context, id, command string) (domain.ExecResult, error) {
	return domain.ExecResult{}, nil
}
