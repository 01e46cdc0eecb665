package terminal

import (
	"strings"
	"unicode"
)

// State is the line discipline state of a session.
type State string

const (
	// StateIdle means the prompt is shown and the edit buffer is empty.
	StateIdle State = "idle"
	// StateEditing means the edit buffer holds at least one character.
	StateEditing State = "editing"
	// StateAwaiting means a command was submitted and its reply is pending.
	StateAwaiting State = "awaiting"
)

// EventKind identifies a decoded input event.
type EventKind int

const (
	EventChar EventKind = iota
	EventBackspace
	EventEnter
)

// Event is one decoded keystroke delivered by the terminal widget.
type Event struct {
	Kind EventKind
	Char rune
}

// Char returns a printable character event.
func Char(r rune) Event { return Event{Kind: EventChar, Char: r} }

// Backspace returns a backspace event.
func Backspace() Event { return Event{Kind: EventBackspace} }

// Enter returns a carriage return event.
func Enter() Event { return Event{Kind: EventEnter} }

// EffectKind identifies an instruction for the session driver.
type EffectKind int

const (
	EffectWriteRaw EffectKind = iota
	EffectWriteLine
	EffectSubmit
	EffectArmTimer
	EffectDisarmTimer
)

// Effect is an instruction produced by a transition. Text is set for writes,
// Command for submits and Seq for submits and timers.
type Effect struct {
	Kind    EffectKind
	Text    string
	Command string
	Seq     uint64
}

// DestructiveBackspace moves the cursor back, blanks the cell and moves back again.
const DestructiveBackspace = "\b \b"

// FailureText is rendered in place of output when an exec call fails.
const FailureText = "⚠️ Command failed"

// Result is the outcome of a submitted command.
type Result struct {
	Output string
	Err    error
}

// Machine is the per-session line discipline. Transitions never mutate the
// receiver; they return the next machine and the effects to run.
type Machine struct {
	State   State
	Prompt  string
	Buffer  []rune
	Pending []Event
	// Seq is the sequence number of the most recent submission.
	Seq uint64
}

// NewMachine returns an idle machine with the given prompt.
func NewMachine(prompt string) Machine {
	return Machine{State: StateIdle, Prompt: prompt}
}

// Line returns the current edit buffer as a string.
func (m Machine) Line() string {
	return string(m.Buffer)
}

func (m Machine) clone() Machine {
	next := m
	next.Buffer = append([]rune(nil), m.Buffer...)
	next.Pending = append([]Event(nil), m.Pending...)
	return next
}

// Step consumes one input event.
func (m Machine) Step(ev Event) (Machine, []Effect) {
	next := m.clone()
	effects := next.step(ev, nil)
	return next, effects
}

func (m *Machine) step(ev Event, effects []Effect) []Effect {
	if m.State == StateAwaiting {
		m.Pending = append(m.Pending, ev)
		return effects
	}

	switch ev.Kind {
	case EventChar:
		m.Buffer = append(m.Buffer, ev.Char)
		m.State = StateEditing
		effects = append(effects, Effect{Kind: EffectWriteRaw, Text: string(ev.Char)})

	case EventBackspace:
		if len(m.Buffer) == 0 {
			return effects
		}
		m.Buffer = m.Buffer[:len(m.Buffer)-1]
		if len(m.Buffer) == 0 {
			m.State = StateIdle
		}
		effects = append(effects, Effect{Kind: EffectWriteRaw, Text: DestructiveBackspace})

	case EventEnter:
		command := strings.TrimFunc(string(m.Buffer), unicode.IsSpace)
		m.Buffer = m.Buffer[:0]
		if command == "" {
			m.State = StateIdle
			return append(effects,
				Effect{Kind: EffectWriteLine},
				Effect{Kind: EffectWriteRaw, Text: m.Prompt},
			)
		}
		m.Seq++
		m.State = StateAwaiting
		effects = append(effects,
			Effect{Kind: EffectWriteLine},
			Effect{Kind: EffectSubmit, Command: command, Seq: m.Seq},
			Effect{Kind: EffectArmTimer, Seq: m.Seq},
		)
	}
	return effects
}

// Resolve applies the outcome of submission seq. Stale or unexpected
// resolutions are rejected and leave the machine unchanged.
func (m Machine) Resolve(seq uint64, res Result) (Machine, []Effect, bool) {
	if m.State != StateAwaiting || seq != m.Seq {
		return m, nil, false
	}
	next := m.clone()
	effects := []Effect{{Kind: EffectDisarmTimer, Seq: seq}}

	if res.Err != nil {
		effects = append(effects, Effect{Kind: EffectWriteLine, Text: FailureText})
	} else if out := strings.TrimSuffix(res.Output, "\n"); out != "" {
		effects = append(effects, Effect{Kind: EffectWriteLine, Text: out})
	}
	effects = append(effects, Effect{Kind: EffectWriteRaw, Text: next.Prompt})

	next.State = StateIdle
	pending := next.Pending
	next.Pending = nil
	for i, ev := range pending {
		effects = next.step(ev, effects)
		if next.State == StateAwaiting {
			// Everything after the replayed submission waits for its reply.
			next.Pending = append(next.Pending, pending[i+1:]...)
			break
		}
	}
	return next, effects, true
}
