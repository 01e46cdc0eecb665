package terminal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
)

// recordingSink renders writes the way a terminal shows them, with "\n"
// standing in for the line break.
type recordingSink struct {
	mu  sync.Mutex
	out strings.Builder
}

func (s *recordingSink) WriteRaw(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.WriteString(text)
}

func (s *recordingSink) WriteLine(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.WriteString(text + "\n")
}

func (s *recordingSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

type sinkSet struct {
	mu    sync.Mutex
	sinks map[string]*recordingSink
}

func newSinkSet() *sinkSet {
	return &sinkSet{sinks: make(map[string]*recordingSink)}
}

func (s *sinkSet) factory(containerID string) ports.RenderSink {
	return s.get(containerID)
}

func (s *sinkSet) get(containerID string) *recordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	sink, ok := s.sinks[containerID]
	if !ok {
		sink = &recordingSink{}
		s.sinks[containerID] = sink
	}
	return sink
}

type reply struct {
	output string
	err    error
}

type execCall struct {
	containerID string
	command     string
	reply       chan reply
}

// fakeTransport hands every call to the test through calls and counts
// concurrent calls per container.
type fakeTransport struct {
	calls chan execCall
	// ignoreCancel makes calls wait for their reply even after cancellation,
	// like a network round trip that cannot be aborted.
	ignoreCancel bool

	mu          sync.Mutex
	inflight    map[string]int
	maxInflight map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls:       make(chan execCall, 16),
		inflight:    make(map[string]int),
		maxInflight: make(map[string]int),
	}
}

func (f *fakeTransport) Submit(ctx context.Context, containerID, command string) (string, error) {
	f.mu.Lock()
	f.inflight[containerID]++
	if f.inflight[containerID] > f.maxInflight[containerID] {
		f.maxInflight[containerID] = f.inflight[containerID]
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight[containerID]--
		f.mu.Unlock()
	}()

	c := execCall{containerID: containerID, command: command, reply: make(chan reply, 1)}
	f.calls <- c
	if f.ignoreCancel {
		r := <-c.reply
		return r.output, r.err
	}
	select {
	case r := <-c.reply:
		return r.output, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeTransport) max(containerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight[containerID]
}

func nextCall(t *testing.T, f *fakeTransport) execCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected an exec call")
		return execCall{}
	}
}

func noCall(t *testing.T, f *fakeTransport) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected exec call %q for %s", c.command, c.containerID)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeDirectory map[string]domain.Container

func (d fakeDirectory) GetContainer(_ context.Context, id string) (domain.Container, error) {
	c, ok := d[id]
	if !ok {
		return domain.Container{}, domain.ErrContainerNotFound
	}
	return c, nil
}
