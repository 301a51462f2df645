// Package renpy reads compiled Ren'Py scripts (.rpyc) and prints their syntax tree
// back as script source.
//
// A compiled script starts with the magic RENPY RPC2, followed by a table of
// (slot, offset, length) triples terminated by slot 0. Each slot is a zlib compressed
// pickle. Slot 1 holds the tuple (header, nodes).
package renpy

import (
	"bytes"
	"io"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/pickle"
	"github.com/klauspost/compress/zlib"
)

var magic = []byte("RENPY RPC2")

// SlotScript is the slot holding the syntax tree.
const SlotScript = 1

// maxChunkSize limits the decompressed size of a single chunk.
const maxChunkSize = 1 << 30

// maxSlots bounds the slot table.
const maxSlots = 1 << 10

type Chunk struct {
	Slot uint32
	Data []byte
}

type Script struct {
	Chunks []Chunk
}

// Detect reports whether header starts with the magic of a compiled script.
func Detect(header []byte) bool {
	return bytes.HasPrefix(header, magic)
}

// LoadScript reads the slot table and decompresses all chunks.
func LoadScript(r io.ReadSeeker) (*Script, error) {
	rd := binread.NewReader(r, errors.PhaseScript)

	ok, err := rd.Magic(magic)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.MalformedHeader(errors.PhaseScript, 0, "expected magic %q", magic)
	}

	type slotEntry struct {
		slot, offset, length uint32
	}

	var slots []slotEntry
	for {
		var entry slotEntry
		for _, field := range []*uint32{&entry.slot, &entry.offset, &entry.length} {
			if *field, err = rd.U32(); err != nil {
				return nil, rd.WrapError("slot table", err)
			}
		}

		if entry.slot == 0 {
			break
		}

		if len(slots) == maxSlots {
			return nil, errors.UnsupportedFeature(errors.PhaseScript, rd.Position(), "more than %d slots", maxSlots)
		}

		slots = append(slots, entry)
	}

	script := &Script{}

	for _, entry := range slots {
		if err := rd.Seek(int64(entry.offset)); err != nil {
			return nil, err
		}

		compressed, err := rd.Bytes(uint64(entry.length))
		if err != nil {
			return nil, rd.WrapError("slot data", err)
		}

		data, err := inflate(compressed)
		if err != nil {
			return nil, errors.New(errors.PhaseScript, errors.KindMalformedHeader).
				At(int64(entry.offset)).
				Detail("decompress slot %d", entry.slot).
				Cause(err).
				Build()
		}

		script.Chunks = append(script.Chunks, Chunk{Slot: entry.slot, Data: data})
	}

	return script, nil
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}

	defer zr.Close()

	return io.ReadAll(io.LimitReader(zr, maxChunkSize))
}

// Chunk returns the first chunk stored in slot.
func (s *Script) Chunk(slot uint32) (Chunk, bool) {
	for _, chunk := range s.Chunks {
		if chunk.Slot == slot {
			return chunk, true
		}
	}

	return Chunk{}, false
}

// Decompile prints the syntax tree stored in SlotScript.
func (s *Script) Decompile() (string, error) {
	chunk, ok := s.Chunk(SlotScript)
	if !ok {
		return "", errors.MalformedHeader(errors.PhaseScript, -1, "no chunk in slot %d", SlotScript)
	}

	value, err := chunk.Pickle()
	if err != nil {
		return "", err
	}

	return Decompile(value)
}

// Pickle parses the chunk data.
func (c Chunk) Pickle() (pickle.Value, error) {
	return pickle.ParseBytes(c.Data)
}
