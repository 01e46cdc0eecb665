package terminal

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeString(m Machine, s string) (Machine, []Effect) {
	var all []Effect
	for _, r := range s {
		var effects []Effect
		m, effects = m.Step(Char(r))
		all = append(all, effects...)
	}
	return m, all
}

func writes(effects []Effect) string {
	var b strings.Builder
	for _, e := range effects {
		switch e.Kind {
		case EffectWriteRaw:
			b.WriteString(e.Text)
		case EffectWriteLine:
			b.WriteString(e.Text + "\n")
		}
	}
	return b.String()
}

func submits(effects []Effect) []Effect {
	var out []Effect
	for _, e := range effects {
		if e.Kind == EffectSubmit {
			out = append(out, e)
		}
	}
	return out
}

func TestMachine_CharactersAccumulateAndEcho(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcxyz -_./|é漢")
	for i := 0; i < 200; i++ {
		n := rng.Intn(20) + 1
		var typed []rune
		for j := 0; j < n; j++ {
			typed = append(typed, alphabet[rng.Intn(len(alphabet))])
		}

		m, effects := typeString(NewMachine("$ "), string(typed))

		assert.Equal(t, string(typed), m.Line())
		assert.Equal(t, StateEditing, m.State)
		require.Len(t, effects, len(typed), "one echo per character")
		for j, e := range effects {
			assert.Equal(t, EffectWriteRaw, e.Kind)
			assert.Equal(t, string(typed[j]), e.Text)
		}
	}
}

func TestMachine_BackspaceOnEmptyIsNoop(t *testing.T) {
	m := NewMachine("$ ")
	next, effects := m.Step(Backspace())
	assert.Empty(t, effects)
	assert.Equal(t, StateIdle, next.State)
	assert.Empty(t, next.Buffer)
}

func TestMachine_BackspaceErasesLastCharacter(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "lsx")
	m, effects := m.Step(Backspace())
	assert.Equal(t, "ls", m.Line())
	assert.Equal(t, StateEditing, m.State)
	assert.Equal(t, []Effect{{Kind: EffectWriteRaw, Text: DestructiveBackspace}}, effects)

	m, _ = m.Step(Backspace())
	m, _ = m.Step(Backspace())
	assert.Equal(t, StateIdle, m.State, "emptied buffer returns to idle")
	assert.Equal(t, "", m.Line())
}

func TestMachine_EnterOnEmptyOrWhitespaceDoesNotSubmit(t *testing.T) {
	for _, typed := range []string{"", " ", "     "} {
		m, _ := typeString(NewMachine("$ "), typed)
		m, effects := m.Step(Enter())
		assert.Empty(t, submits(effects), "typed %q", typed)
		assert.Equal(t, StateIdle, m.State)
		assert.Empty(t, m.Buffer)
		assert.Equal(t, "\n$ ", writes(effects))
		assert.Equal(t, uint64(0), m.Seq)
	}
}

func TestMachine_SubmitClearsBufferBeforeReply(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "  ls -la ")
	m, effects := m.Step(Enter())

	assert.Equal(t, StateAwaiting, m.State)
	assert.Empty(t, m.Buffer)
	require.Len(t, submits(effects), 1)
	assert.Equal(t, "ls -la", submits(effects)[0].Command)
	assert.Equal(t, uint64(1), submits(effects)[0].Seq)
	assert.Equal(t, []Effect{
		{Kind: EffectWriteLine},
		{Kind: EffectSubmit, Command: "ls -la", Seq: 1},
		{Kind: EffectArmTimer, Seq: 1},
	}, effects)
}

func TestMachine_ResolveWritesOutputAndPrompt(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "ls")
	m, _ = m.Step(Enter())

	m, effects, ok := m.Resolve(1, Result{Output: "a.txt\nb.txt\n"})
	require.True(t, ok)
	assert.Equal(t, StateIdle, m.State)
	assert.Equal(t, []Effect{
		{Kind: EffectDisarmTimer, Seq: 1},
		{Kind: EffectWriteLine, Text: "a.txt\nb.txt"},
		{Kind: EffectWriteRaw, Text: "$ "},
	}, effects)
}

func TestMachine_ResolveEmptyOutputOnlyPrompts(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "true")
	m, _ = m.Step(Enter())
	_, effects, ok := m.Resolve(1, Result{})
	require.True(t, ok)
	assert.Equal(t, "$ ", writes(effects))
}

func TestMachine_ResolveFailureWritesFailureLine(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "ls")
	m, _ = m.Step(Enter())
	m, effects, ok := m.Resolve(1, Result{Output: "ignored", Err: errors.New("boom")})
	require.True(t, ok)
	assert.Equal(t, StateIdle, m.State)
	assert.Equal(t, FailureText+"\n$ ", writes(effects))
}

func TestMachine_StaleResolutionRejected(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "ls")
	m, _ = m.Step(Enter())

	_, effects, ok := m.Resolve(7, Result{Output: "late"})
	assert.False(t, ok)
	assert.Empty(t, effects)

	m, _, ok = m.Resolve(1, Result{Err: errors.New("timeout")})
	require.True(t, ok)

	// A second resolution of the same submission is rejected as well.
	after, effects, ok := m.Resolve(1, Result{Output: "late"})
	assert.False(t, ok)
	assert.Empty(t, effects)
	assert.Equal(t, m, after)
}

func TestMachine_TypeAheadIsQueuedAndReplayed(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "sleep 5")
	m, _ = m.Step(Enter())

	m, effects := typeString(m, "pwd")
	assert.Empty(t, effects, "no echo while awaiting")
	assert.Len(t, m.Pending, 3)
	assert.Empty(t, m.Buffer)

	m, effects, ok := m.Resolve(1, Result{Output: "done"})
	require.True(t, ok)
	assert.Equal(t, StateEditing, m.State)
	assert.Equal(t, "pwd", m.Line())
	assert.Empty(t, m.Pending)
	assert.Equal(t, "done\n$ pwd", writes(effects))
}

func TestMachine_ReplayedSubmissionKeepsRestPending(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "a")
	m, _ = m.Step(Enter())

	m, _ = typeString(m, "b")
	m, _ = m.Step(Enter())
	m, _ = typeString(m, "c")
	require.Len(t, m.Pending, 3)

	m, effects, ok := m.Resolve(1, Result{Output: "A"})
	require.True(t, ok)
	assert.Equal(t, StateAwaiting, m.State)
	assert.Equal(t, uint64(2), m.Seq)
	require.Len(t, submits(effects), 1)
	assert.Equal(t, "b", submits(effects)[0].Command)
	assert.Equal(t, []Event{Char('c')}, m.Pending)

	m, effects, ok = m.Resolve(2, Result{Output: "B"})
	require.True(t, ok)
	assert.Equal(t, "c", m.Line())
	assert.Equal(t, "B\n$ c", writes(effects))
}

func TestMachine_StepDoesNotMutateReceiver(t *testing.T) {
	m, _ := typeString(NewMachine("$ "), "ab")
	before := m.Line()
	_, _ = m.Step(Char('c'))
	_, _ = m.Step(Backspace())
	_, _ = m.Step(Enter())
	assert.Equal(t, before, m.Line())
	assert.Equal(t, StateEditing, m.State)
}
