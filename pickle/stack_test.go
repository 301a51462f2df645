package pickle

import (
	"testing"

	"github.com/go-gum/unpack/errors"
	"github.com/stretchr/testify/require"
)

func TestStackPopToMark(t *testing.T) {
	var s stack
	s.Push(String("below"))
	s.PushMark()
	s.Push(Int(1))
	s.Push(Int(2))
	s.Push(Int(3))

	items, err := s.PopToMark(0)
	require.NoError(t, err)
	require.Equal(t, []Value{Int(1), Int(2), Int(3)}, items)

	// the mark is consumed, the value below stays
	require.Equal(t, 1, s.Len())

	top, err := s.Top(0)
	require.NoError(t, err)
	require.Equal(t, String("below"), top)
}

func TestStackPopToMarkNested(t *testing.T) {
	var s stack
	s.PushMark()
	s.Push(Int(1))
	s.PushMark()
	s.Push(Int(2))

	items, err := s.PopToMark(0)
	require.NoError(t, err)
	require.Equal(t, []Value{Int(2)}, items)

	items, err = s.PopToMark(0)
	require.NoError(t, err)
	require.Equal(t, []Value{Int(1)}, items)

	items, err = s.PopToMark(0)
	require.Nil(t, items)
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))
}

func TestStackPopToMarkEmptyGroup(t *testing.T) {
	var s stack
	s.PushMark()

	items, err := s.PopToMark(0)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, 0, s.Len())
}

func TestStackPop(t *testing.T) {
	var s stack

	_, err := s.Pop(4)
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))

	s.PushMark()
	_, err = s.Pop(4)
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))

	// discard removes marks as well
	require.NoError(t, s.Discard(4))
	require.Error(t, s.Discard(4))
}

func TestStackPopN(t *testing.T) {
	var s stack
	s.Push(Int(1))
	s.Push(Int(2))

	_, err := s.PopN(0, 3)
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))

	items, err := s.PopN(0, 2)
	require.NoError(t, err)
	require.Equal(t, []Value{Int(1), Int(2)}, items)

	s.PushMark()
	s.Push(Int(3))
	_, err = s.PopN(0, 2)
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))
}

func TestMemo(t *testing.T) {
	var m memo

	require.NoError(t, m.Put(0, 2, String("two")))
	require.Equal(t, 3, m.Len())

	value, err := m.Get(0, 2)
	require.NoError(t, err)
	require.Equal(t, String("two"), value)

	_, err = m.Get(0, 1)
	require.True(t, errors.IsKind(err, errors.KindMemoViolation))

	_, err = m.Get(0, 3)
	require.True(t, errors.IsKind(err, errors.KindMemoViolation))

	require.Error(t, m.Put(0, maxMemoIndex, None{}))
}
