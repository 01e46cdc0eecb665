package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/logutil"
)

// Session is the driver around one container's Machine. It serialises input
// events and exec completions under a single mutex and executes the effects
// each transition returns.
//
// Lifecycle:
//  1. Created by Registry.Open: greeting and prompt are written, state=idle
//  2. Input is fed through Feed/Input; a carriage return submits a command
//  3. The reply (or a timeout) resolves the submission, state=idle again
//  4. Registry.Close marks it closed: later results are discarded
type Session struct {
	containerID string
	sink        ports.RenderSink
	transport   ports.ExecTransport
	timeout     time.Duration

	mu       sync.Mutex
	machine  Machine
	closed   bool
	timer    *time.Timer
	cancel   context.CancelFunc
	lastCall <-chan struct{} // closed when the most recent transport call returns
	busy     chan struct{}   // non-nil while awaiting; closed when the session settles
	openedAt time.Time
}

func newSession(containerID, prompt string, sink ports.RenderSink, transport ports.ExecTransport, timeout time.Duration, tail <-chan struct{}) *Session {
	return &Session{
		containerID: containerID,
		sink:        sink,
		transport:   transport,
		timeout:     timeout,
		machine:     NewMachine(prompt),
		lastCall:    tail,
		openedAt:    time.Now(),
	}
}

// ContainerID returns the container this session executes commands in.
func (s *Session) ContainerID() string {
	return s.containerID
}

// State returns the current line discipline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State
}

// Line returns the characters typed since the last submission.
func (s *Session) Line() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Line()
}

// Pending returns the number of events typed ahead while awaiting a reply.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.machine.Pending)
}

// WaitIdle blocks until no command is outstanding and nothing typed ahead is
// left to replay, or until ctx is done.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	if busy == nil {
		return nil
	}
	select {
	case <-busy:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trackBusyLocked opens or releases the WaitIdle channel after a
// transition. Caller must hold s.mu.
func (s *Session) trackBusyLocked() {
	awaiting := s.machine.State == StateAwaiting && !s.closed
	switch {
	case awaiting && s.busy == nil:
		s.busy = make(chan struct{})
	case !awaiting && s.busy != nil:
		close(s.busy)
		s.busy = nil
	}
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) greet(greeting string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if greeting != "" {
		s.sink.WriteLine(greeting)
	}
	s.sink.WriteRaw(s.machine.Prompt)
}

// Feed applies a single input event.
func (s *Session) Feed(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedLocked(ev)
}

// Input decodes raw widget input and applies the resulting events in order.
func (s *Session) Input(data string) {
	events := DecodeInput(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.feedLocked(ev)
	}
}

func (s *Session) feedLocked(ev Event) {
	if s.closed {
		return
	}
	next, effects := s.machine.Step(ev)
	s.machine = next
	s.run(effects)
	s.trackBusyLocked()
}

// run executes effects in order. Caller must hold s.mu.
func (s *Session) run(effects []Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case EffectWriteRaw:
			if eff.Text != "" {
				s.sink.WriteRaw(eff.Text)
			}
		case EffectWriteLine:
			s.sink.WriteLine(eff.Text)
		case EffectSubmit:
			s.dispatch(eff.Seq, eff.Command)
		case EffectArmTimer:
			s.armTimer(eff.Seq)
		case EffectDisarmTimer:
			if s.timer != nil {
				s.timer.Stop()
				s.timer = nil
			}
		}
	}
}

// dispatch hands command to the transport on its own goroutine. The call
// does not start until the previous call for this container has returned.
// Caller must hold s.mu.
func (s *Session) dispatch(seq uint64, command string) {
	log.Printf("[terminal] container %s: submit #%d %q",
		logutil.SanitizeForLog(s.containerID), seq, logutil.SanitizeForLog(command))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	prev := s.lastCall
	done := make(chan struct{})
	s.lastCall = done

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		output, err := s.transport.Submit(ctx, s.containerID, command)
		s.resolve(seq, Result{Output: output, Err: err})
	}()
}

// armTimer schedules a timeout resolution for seq. Caller must hold s.mu.
func (s *Session) armTimer(seq uint64) {
	if s.timeout <= 0 {
		return
	}
	timeout := s.timeout
	s.timer = time.AfterFunc(timeout, func() {
		s.resolve(seq, Result{Err: domain.NewExecError(domain.ErrTimeout, 0,
			fmt.Sprintf("no reply within %s", timeout), nil)})
	})
}

func (s *Session) resolve(seq uint64, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Printf("[terminal] container %s: discarding result #%d of closed session",
			logutil.SanitizeForLog(s.containerID), seq)
		return
	}
	next, effects, ok := s.machine.Resolve(seq, res)
	if !ok {
		log.Printf("[terminal] container %s: discarding stale result #%d (current #%d)",
			logutil.SanitizeForLog(s.containerID), seq, s.machine.Seq)
		return
	}
	if res.Err != nil {
		log.Printf("[terminal] container %s: command #%d failed (%s): %v",
			logutil.SanitizeForLog(s.containerID), seq, failureKind(res.Err), res.Err)
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.machine = next
	s.run(effects)
	s.trackBusyLocked()
}

// close stops the session. An outstanding call runs to completion but its
// result is discarded. The returned channel closes when that call returns.
func (s *Session) close() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		log.Printf("[terminal] closed session for container %s (open %s)",
			logutil.SanitizeForLog(s.containerID), time.Since(s.openedAt).Round(time.Second))
		s.trackBusyLocked()
	}
	return s.lastCall
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrAuth):
		return "auth"
	case errors.Is(err, domain.ErrInFlight):
		return "in-flight"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
