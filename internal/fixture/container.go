package fixture

import (
	"bytes"

	"github.com/go-gum/unpack/internal/binread"
	"github.com/klauspost/compress/zlib"
)

// Zlib compresses data into a zlib stream.
func Zlib(data []byte) []byte {
	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		panic(err)
	}

	if err := zw.Close(); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// RPC2 builds a compiled script container holding the given chunks in slots 1 to n.
func RPC2(chunks ...[]byte) []byte {
	const magic = "RENPY RPC2"

	compressed := make([][]byte, len(chunks))
	for idx, chunk := range chunks {
		compressed[idx] = Zlib(chunk)
	}

	w := binread.NewWriter()
	w.Raw([]byte(magic)...)

	offset := len(magic) + 12*(len(chunks)+1)
	for idx, data := range compressed {
		w.U32(uint32(idx + 1)).U32(uint32(offset)).U32(uint32(len(data)))
		offset += len(data)
	}

	w.U32(0).U32(0).U32(0)

	for _, data := range compressed {
		w.Raw(data...)
	}

	return w.Bytes()
}
