package pdu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func part(number string, ref, count, seq int, text string) *Message {
	return &Message{
		Number: number,
		Text:   text,
		Concat: &Concat{Reference: ref, Count: count, Sequence: seq},
	}
}

func TestAssembler(t *testing.T) {
	t.Run("out of order", func(t *testing.T) {
		a := NewAssembler()
		_, ok := a.Add(part("+1", 9, 3, 3, "c"))
		require.False(t, ok)
		_, ok = a.Add(part("+1", 9, 3, 1, "a"))
		require.False(t, ok)
		require.Equal(t, 1, a.Pending())

		m, ok := a.Add(part("+1", 9, 3, 2, "b"))
		require.True(t, ok)
		require.Equal(t, "abc", m.Text)
		require.Equal(t, "+1", m.Number)
		require.Nil(t, m.Concat)
		require.Equal(t, 0, a.Pending())
	})

	t.Run("senders kept apart", func(t *testing.T) {
		a := NewAssembler()
		_, ok := a.Add(part("+1", 9, 2, 1, "a"))
		require.False(t, ok)
		_, ok = a.Add(part("+2", 9, 2, 2, "b"))
		require.False(t, ok)
		require.Equal(t, 2, a.Pending())
	})

	t.Run("plain message passes through", func(t *testing.T) {
		a := NewAssembler()
		in := &Message{Number: "+1", Text: "hi"}
		m, ok := a.Add(in)
		require.True(t, ok)
		require.Same(t, in, m)
	})

	t.Run("sequence out of range passes through", func(t *testing.T) {
		a := NewAssembler()
		in := part("+1", 1, 2, 5, "x")
		m, ok := a.Add(in)
		require.True(t, ok)
		require.Same(t, in, m)
		require.Equal(t, 0, a.Pending())
	})
}

func TestReassemble(t *testing.T) {
	plain := &Message{Number: "+3", Text: "plain"}
	orphan := part("+2", 4, 2, 1, "lonely")
	msgs := []*Message{
		part("+1", 7, 2, 2, "world"),
		orphan,
		plain,
		part("+1", 7, 2, 1, "hello "),
	}

	out := Reassemble(msgs)
	require.Len(t, out, 3)
	require.Same(t, plain, out[0])
	require.Equal(t, "hello world", out[1].Text)
	require.Same(t, orphan, out[2])
}

func TestReassembleReusedReference(t *testing.T) {
	again := part("+1", 7, 2, 1, "again")
	msgs := []*Message{
		part("+1", 7, 2, 1, "hello "),
		part("+1", 7, 2, 2, "world"),
		again,
	}

	out := Reassemble(msgs)
	require.Len(t, out, 2)
	require.Equal(t, "hello world", out[0].Text)
	require.Same(t, again, out[1])
}
