package resource

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var magicCompressed = []byte("GCMP")

// Compression is the codec a compressed stream was written with.
type Compression uint32

const (
	CompressionFastLZ  Compression = 0
	CompressionDeflate Compression = 1
	CompressionZstd    Compression = 2
	CompressionGzip    Compression = 3
	CompressionBrotli  Compression = 4
)

func (c Compression) String() string {
	switch c {
	case CompressionFastLZ:
		return "fastlz"
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	case CompressionBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("Compression(%d)", uint32(c))
	}
}

// maxDecompressed bounds the total size a compressed stream may declare.
const maxDecompressed = 1 << 31

// OpenCompressed reads a block compressed stream starting with the GCMP magic.
func OpenCompressed(r io.Reader) (*bytes.Reader, error) {
	br := binread.NewReader(r, errors.PhaseCompression)

	start := br.Position()

	ok, err := br.Magic(magicCompressed)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.MalformedHeader(errors.PhaseCompression, start, "expected magic %q", magicCompressed)
	}

	return openBlocks(br)
}

// OpenAfterMagic reads a block compressed stream whose magic was already consumed,
// as found in compressed resource containers.
//
// The header holds the codec, the uncompressed block size, the total uncompressed size
// and the compressed size of every block. Blocks follow the size table back to back.
// Every block but the last one decompresses to exactly the block size. The result is
// a seekable buffer holding the whole uncompressed stream.
func OpenAfterMagic(r io.Reader) (*bytes.Reader, error) {
	return openBlocks(binread.NewReader(r, errors.PhaseCompression))
}

func openBlocks(br *binread.Reader) (*bytes.Reader, error) {
	start := br.Position()

	mode, err := br.U32()
	if err != nil {
		return nil, err
	}

	blockSize, err := br.U32()
	if err != nil {
		return nil, err
	}

	total, err := br.U32()
	if err != nil {
		return nil, err
	}

	compression := Compression(mode)

	switch compression {
	case CompressionDeflate, CompressionZstd, CompressionGzip:
	case CompressionFastLZ, CompressionBrotli:
		return nil, errors.UnsupportedFeature(errors.PhaseCompression, start, "compression mode %s", compression)
	default:
		return nil, errors.New(errors.PhaseCompression, errors.KindUnknownTag).
			At(start).
			Value(uint64(mode)).
			Detail("unknown compression mode %d", mode).
			Build()
	}

	if blockSize == 0 {
		return nil, errors.MalformedHeader(errors.PhaseCompression, start+4, "block size is zero")
	}

	if uint64(total) > maxDecompressed {
		return nil, errors.UnsupportedFeature(errors.PhaseCompression, start+8, "uncompressed size %d too large", total)
	}

	blockCount := total/blockSize + 1

	sizes := make([]uint32, 0, min(blockCount, 4096))
	for range blockCount {
		size, err := br.U32()
		if err != nil {
			return nil, err
		}

		sizes = append(sizes, size)
	}

	codec, err := newBlockCodec(compression)
	if err != nil {
		return nil, err
	}

	defer codec.Close()

	out := make([]byte, 0, total)

	for idx, size := range sizes {
		blockStart := br.Position()

		want := min(blockSize, total-uint32(len(out)))

		compressed, err := br.Bytes(uint64(size))
		if err != nil {
			return nil, err
		}

		if want == 0 {
			// the trailing block of a stream that is an exact multiple of the block size
			continue
		}

		block, err := codec.Decompress(compressed, int(want))
		if err != nil {
			return nil, errors.New(errors.PhaseCompression, errors.KindMalformedHeader).
				At(blockStart).
				Detail("decompress block %d (%s)", idx, compression).
				Cause(err).
				Build()
		}

		if len(block) != int(want) {
			return nil, errors.MalformedHeader(errors.PhaseCompression, blockStart,
				"block %d decompressed to %d bytes, expected %d", idx, len(block), want)
		}

		out = append(out, block...)
	}

	if len(out) != int(total) {
		return nil, errors.MalformedHeader(errors.PhaseCompression, start,
			"stream decompressed to %d bytes, expected %d", len(out), total)
	}

	return bytes.NewReader(out), nil
}

type blockCodec interface {
	Decompress(block []byte, size int) ([]byte, error)
	Close()
}

func newBlockCodec(compression Compression) (blockCodec, error) {
	switch compression {
	case CompressionZstd:
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}

		return zstdCodec{decoder: decoder}, nil

	case CompressionGzip:
		return streamCodec{open: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		}}, nil

	default:
		// deflate blocks carry a zlib header
		return streamCodec{open: zlib.NewReader}, nil
	}
}

type zstdCodec struct {
	decoder *zstd.Decoder
}

func (c zstdCodec) Decompress(block []byte, size int) ([]byte, error) {
	return c.decoder.DecodeAll(block, make([]byte, 0, size))
}

func (c zstdCodec) Close() {
	c.decoder.Close()
}

type streamCodec struct {
	open func(r io.Reader) (io.ReadCloser, error)
}

func (c streamCodec) Decompress(block []byte, size int) ([]byte, error) {
	rd, err := c.open(bytes.NewReader(block))
	if err != nil {
		return nil, err
	}

	defer rd.Close()

	// read one byte more than expected so an oversized block is detected
	buf, err := io.ReadAll(io.LimitReader(rd, int64(size)+1))
	if err != nil {
		return nil, err
	}

	return buf, nil
}

func (streamCodec) Close() {}
