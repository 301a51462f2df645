package pickle

import (
	"slices"

	"github.com/go-gum/unpack/errors"
)

type stackEntry struct {
	value Value
	mark  bool
}

// stack is the operand stack of the machine. Marks are stored inline as sentinels.
type stack struct {
	entries []stackEntry
}

func (s *stack) Len() int {
	return len(s.entries)
}

func (s *stack) Push(value Value) {
	s.entries = append(s.entries, stackEntry{value: value})
}

func (s *stack) PushMark() {
	s.entries = append(s.entries, stackEntry{mark: true})
}

// Pop removes the top value. Popping a mark or an empty stack is a stack discipline error.
func (s *stack) Pop(offset int64) (Value, error) {
	top, err := s.Top(offset)
	if err != nil {
		return nil, err
	}

	s.entries = s.entries[:len(s.entries)-1]
	return top, nil
}

// Top returns the top value without removing it.
func (s *stack) Top(offset int64) (Value, error) {
	if len(s.entries) == 0 {
		return nil, errors.StackDiscipline(errors.PhasePickle, offset, "stack is empty")
	}

	top := s.entries[len(s.entries)-1]
	if top.mark {
		return nil, errors.StackDiscipline(errors.PhasePickle, offset, "top of stack is a mark")
	}

	return top.value, nil
}

// Discard removes the top entry, value or mark.
func (s *stack) Discard(offset int64) error {
	if len(s.entries) == 0 {
		return errors.StackDiscipline(errors.PhasePickle, offset, "stack is empty")
	}

	s.entries = s.entries[:len(s.entries)-1]
	return nil
}

// PopN removes the top n values and returns them in push order.
func (s *stack) PopN(offset int64, n int) ([]Value, error) {
	if len(s.entries) < n {
		return nil, errors.StackDiscipline(errors.PhasePickle, offset, "stack holds fewer values than required")
	}

	tail := s.entries[len(s.entries)-n:]

	values := make([]Value, 0, n)
	for _, entry := range tail {
		if entry.mark {
			return nil, errors.StackDiscipline(errors.PhasePickle, offset, "mark within fixed size group")
		}

		values = append(values, entry.value)
	}

	s.entries = s.entries[:len(s.entries)-n]
	return values, nil
}

// PopToMark removes all values pushed since the topmost mark and the mark itself.
// The values are returned in push order.
func (s *stack) PopToMark(offset int64) ([]Value, error) {
	idx := -1
	for i, entry := range slices.Backward(s.entries) {
		if entry.mark {
			idx = i
			break
		}
	}

	if idx < 0 {
		return nil, errors.StackDiscipline(errors.PhasePickle, offset, "no mark on stack")
	}

	values := make([]Value, 0, len(s.entries)-idx-1)
	for _, entry := range s.entries[idx+1:] {
		values = append(values, entry.value)
	}

	s.entries = s.entries[:idx]
	return values, nil
}
