package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsingh-rishi/voice-agent/model"
)

func TestNew_RejectsNonPositiveLimit(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-3)
	assert.Error(t, err)
}

func TestState_PhaseTransitions(t *testing.T) {
	s, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, Fresh, s.Phase())

	require.NoError(t, s.RecordTurn("hi", "hello"))
	assert.Equal(t, Active, s.Phase())

	require.NoError(t, s.RecordTurn("a", "b"))
	assert.Equal(t, Active, s.Phase())

	require.NoError(t, s.RecordTurn("c", "d"))
	assert.Equal(t, Exhausted, s.Phase())
	assert.True(t, s.Exhausted())
}

func TestState_GreetingMakesSessionActiveWithoutCountingTurn(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)

	s.AppendAssistant("Hi there, what's your favourite colour?")
	assert.Equal(t, Active, s.Phase())
	assert.Equal(t, 0, s.Turns())
	assert.Equal(t, []model.Utterance{model.Assistant("Hi there, what's your favourite colour?")}, s.History())
}

func TestState_ExhaustedRejectsTurnsAndKeepsState(t *testing.T) {
	s, err := New(1)
	require.NoError(t, err)
	require.NoError(t, s.RecordTurn("one", "reply"))

	before := s.History()
	for i := 0; i < 3; i++ {
		err := s.RecordTurn("again", "nope")
		assert.ErrorIs(t, err, ErrExhausted)
	}

	assert.Equal(t, 1, s.Turns())
	assert.Equal(t, before, s.History())
}

func TestState_TurnsNeverExceedLimit(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	last := 0
	for i := 0; i < 20; i++ {
		_ = s.RecordTurn("u", "a")
		assert.GreaterOrEqual(t, s.Turns(), last)
		assert.LessOrEqual(t, s.Turns(), s.Limit())
		last = s.Turns()
	}
	assert.Equal(t, 5, s.Turns())
	assert.Equal(t, 10, s.Len())
}

func TestState_HistoryOrderAndCopy(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)
	require.NoError(t, s.RecordTurn("question", "answer"))

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, model.User("question"), h[0])
	assert.Equal(t, model.Assistant("answer"), h[1])

	h[0].Content = "mutated"
	assert.Equal(t, "question", s.History()[0].Content)
}

func TestState_Reset(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)
	require.NoError(t, s.RecordTurn("a", "b"))
	require.NoError(t, s.RecordTurn("c", "d"))
	require.True(t, s.Exhausted())

	s.Reset()

	assert.Equal(t, Fresh, s.Phase())
	assert.Equal(t, 0, s.Turns())
	assert.Empty(t, s.History())
	assert.NoError(t, s.RecordTurn("e", "f"))
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "exhausted", Exhausted.String())
}
