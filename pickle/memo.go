package pickle

import (
	"github.com/go-gum/unpack/errors"
)

// maxMemoIndex bounds sparse memo growth from a corrupt index operand.
const maxMemoIndex = 1 << 24

type memoSlot struct {
	value Value
	set   bool
}

// memo is the index addressed back-reference table. Indices may be sparse,
// unset slots are kept as explicit empty entries.
type memo struct {
	slots []memoSlot
}

func (m *memo) Len() int {
	return len(m.slots)
}

func (m *memo) Put(offset int64, index uint64, value Value) error {
	if index >= maxMemoIndex {
		return errors.MemoViolation(errors.PhasePickle, offset, index, "index exceeds memo capacity")
	}

	for uint64(len(m.slots)) <= index {
		m.slots = append(m.slots, memoSlot{})
	}

	m.slots[index] = memoSlot{value: value, set: true}
	return nil
}

func (m *memo) Get(offset int64, index uint64) (Value, error) {
	if index >= uint64(len(m.slots)) {
		return nil, errors.MemoViolation(errors.PhasePickle, offset, index, "index out of range")
	}

	slot := m.slots[index]
	if !slot.set {
		return nil, errors.MemoViolation(errors.PhasePickle, offset, index, "slot is empty")
	}

	return slot.value, nil
}
