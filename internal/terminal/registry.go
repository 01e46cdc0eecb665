package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/logutil"
)

const (
	// DefaultPrompt is written after the greeting and after every exchange.
	DefaultPrompt = "$ "
	// DefaultGreeting is formatted with the container ID when a session opens.
	DefaultGreeting = "Connected to container: %s"
	// DefaultExecTimeout bounds how long a session waits for a reply.
	DefaultExecTimeout = 30 * time.Second
)

// SinkFactory returns the render sink for a container's terminal view.
type SinkFactory func(containerID string) ports.RenderSink

// Options configures sessions created by a Registry.
type Options struct {
	Prompt string
	// Greeting is a format string receiving the container ID.
	Greeting    string
	ExecTimeout time.Duration
	// Directory gates which containers may be opened. Nil disables the check.
	Directory ports.ContainerDirectory
}

// Registry owns the active sessions of one UI, keyed by container ID.
// When a Directory is set the key is the ID it resolves, so a container
// opened by name and by ID shares one session.
type Registry struct {
	transport ports.ExecTransport
	sinks     SinkFactory
	opts      Options

	mu       sync.Mutex
	sessions map[string]*Session
	// aliases maps names and short IDs the caller used to the resolved ID.
	aliases map[string]string
	// tails holds the last-call channel of closed sessions so a reopened
	// session never overlaps a call its predecessor left running.
	tails map[string]<-chan struct{}
}

// NewRegistry creates a registry whose sessions submit through transport and
// render through the sinks returned by sinks.
func NewRegistry(transport ports.ExecTransport, sinks SinkFactory, opts Options) *Registry {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.ExecTimeout == 0 {
		opts.ExecTimeout = DefaultExecTimeout
	}
	return &Registry{
		transport: transport,
		sinks:     sinks,
		opts:      opts,
		sessions:  make(map[string]*Session),
		aliases:   make(map[string]string),
		tails:     make(map[string]<-chan struct{}),
	}
}

// Open returns the session for containerID, creating it if needed. A new
// session writes the greeting and prompt; an existing one is returned as is.
// The returned session's ContainerID is the resolved ID, which may differ
// from the name or prefix passed in.
func (r *Registry) Open(ctx context.Context, containerID string) (*Session, error) {
	if containerID == "" {
		return nil, fmt.Errorf("open session: %w", domain.ErrContainerNotFound)
	}
	if s := r.Get(containerID); s != nil {
		return s, nil
	}

	id := containerID
	if r.opts.Directory != nil {
		c, err := r.opts.Directory.GetContainer(ctx, containerID)
		if err != nil {
			return nil, fmt.Errorf("open session for %s: %w", containerID, err)
		}
		if !c.IsRunning() {
			return nil, fmt.Errorf("open session for %s: %w", containerID, domain.ErrContainerNotRunning)
		}
		if c.ID != "" {
			id = c.ID
		}
	}

	r.mu.Lock()
	if id != containerID {
		r.aliases[containerID] = id
	}
	if s, ok := r.sessions[id]; ok {
		// Opened under another alias, or lost a race with a concurrent Open.
		r.mu.Unlock()
		return s, nil
	}
	s := newSession(id, r.opts.Prompt, r.sinks(id), r.transport, r.opts.ExecTimeout, r.tails[id])
	delete(r.tails, id)
	r.sessions[id] = s
	r.mu.Unlock()

	s.greet(r.greeting(id))
	log.Printf("[terminal] opened session for container %s", logutil.SanitizeForLog(id))
	return s, nil
}

func (r *Registry) greeting(containerID string) string {
	if strings.Contains(r.opts.Greeting, "%s") {
		return fmt.Sprintf(r.opts.Greeting, containerID)
	}
	return r.opts.Greeting
}

// resolveLocked maps an alias to the session key. Caller must hold r.mu.
func (r *Registry) resolveLocked(containerID string) string {
	if id, ok := r.aliases[containerID]; ok {
		return id
	}
	return containerID
}

// Get returns the active session for containerID or one of its aliases, or nil.
func (r *Registry) Get(containerID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[r.resolveLocked(containerID)]
}

// Close removes the session for containerID or one of its aliases. It
// reports whether one existed.
func (r *Registry) Close(containerID string) bool {
	r.mu.Lock()
	id := r.resolveLocked(containerID)
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	for alias, target := range r.aliases {
		if target == id {
			delete(r.aliases, alias)
		}
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	tail := s.close()
	if tail != nil {
		r.mu.Lock()
		r.tails[id] = tail
		r.mu.Unlock()
	}
	return true
}

// CloseAll tears down every session.
func (r *Registry) CloseAll() {
	for _, id := range r.ContainerIDs() {
		r.Close(id)
	}
}

// ContainerIDs lists the containers with an open session.
func (r *Registry) ContainerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IsGateError reports whether err came from the directory gate rather than
// from the directory lookup itself failing.
func IsGateError(err error) bool {
	return errors.Is(err, domain.ErrContainerNotFound) || errors.Is(err, domain.ErrContainerNotRunning)
}
