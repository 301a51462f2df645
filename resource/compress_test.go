package resource

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func compressBlock(t *testing.T, mode Compression, block []byte) []byte {
	t.Helper()

	switch mode {
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		defer enc.Close()

		return enc.EncodeAll(block, nil)

	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, err := w.Write(block)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()

	case CompressionDeflate:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		_, err := w.Write(block)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()

	default:
		t.Fatalf("no encoder for %s", mode)
		return nil
	}
}

// compressStream builds a block compressed stream without magic.
func compressStream(t *testing.T, mode Compression, blockSize int, data []byte) []byte {
	t.Helper()

	var blocks [][]byte
	for offset := 0; offset <= len(data); offset += blockSize {
		end := min(offset+blockSize, len(data))
		blocks = append(blocks, compressBlock(t, mode, data[offset:end]))
	}

	// one block per started block size, plus one
	require.Len(t, blocks, len(data)/blockSize+1)

	w := binread.NewWriter().U32(uint32(mode)).U32(uint32(blockSize)).U32(uint32(len(data)))
	for _, block := range blocks {
		w.U32(uint32(len(block)))
	}

	for _, block := range blocks {
		w.Raw(block...)
	}

	return w.Bytes()
}

func payload(n int) []byte {
	data := make([]byte, n)
	for idx := range data {
		data[idx] = byte(idx * 7)
	}

	return data
}

func TestOpenAfterMagic(t *testing.T) {
	cases := []struct {
		name      string
		mode      Compression
		blockSize int
		size      int
	}{
		{"zstd", CompressionZstd, 64, 200},
		{"zstd exact multiple", CompressionZstd, 64, 128},
		{"zstd single block", CompressionZstd, 4096, 10},
		{"deflate", CompressionDeflate, 50, 175},
		{"gzip", CompressionGzip, 32, 100},
		{"empty", CompressionZstd, 16, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := payload(tc.size)

			r, err := OpenAfterMagic(bytes.NewReader(compressStream(t, tc.mode, tc.blockSize, data)))
			require.NoError(t, err)
			require.Equal(t, int64(tc.size), r.Size())

			decompressed, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, data, decompressed)
		})
	}
}

func TestOpenCompressedIsSeekable(t *testing.T) {
	data := payload(300)

	stream := append([]byte("GCMP"), compressStream(t, CompressionZstd, 64, data)...)

	r, err := OpenCompressed(bytes.NewReader(stream))
	require.NoError(t, err)

	_, err = r.Seek(130, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	require.Equal(t, data[130:140], buf)
}

func TestOpenCompressedRejectsMagic(t *testing.T) {
	_, err := OpenCompressed(bytes.NewReader([]byte("GCMX....")))
	require.True(t, errors.IsKind(err, errors.KindMalformedHeader))
}

func TestOpenAfterMagicUnsupportedModes(t *testing.T) {
	for _, mode := range []Compression{CompressionFastLZ, CompressionBrotli} {
		stream := binread.NewWriter().U32(uint32(mode)).U32(16).U32(0).U32(0).Bytes()

		_, err := OpenAfterMagic(bytes.NewReader(stream))
		require.True(t, errors.IsKind(err, errors.KindUnsupportedFeature), "mode %s", mode)
	}

	stream := binread.NewWriter().U32(9).U32(16).U32(0).U32(0).Bytes()
	_, err := OpenAfterMagic(bytes.NewReader(stream))
	require.True(t, errors.IsKind(err, errors.KindUnknownTag))
}

func TestOpenAfterMagicSizeMismatch(t *testing.T) {
	data := payload(40)
	block := compressBlock(t, CompressionZstd, data)

	// declares 48 bytes in a single block, the block only holds 40
	stream := binread.NewWriter().
		U32(uint32(CompressionZstd)).U32(64).U32(48).
		U32(uint32(len(block))).
		Raw(block...).
		Bytes()

	_, err := OpenAfterMagic(bytes.NewReader(stream))
	require.True(t, errors.IsKind(err, errors.KindMalformedHeader))
}

func TestOpenAfterMagicCorruptBlock(t *testing.T) {
	stream := binread.NewWriter().
		U32(uint32(CompressionDeflate)).U32(64).U32(4).
		U32(4).
		Raw(1, 2, 3, 4).
		Bytes()

	_, err := OpenAfterMagic(bytes.NewReader(stream))

	var decodeErr *errors.Error
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, errors.PhaseCompression, decodeErr.Phase)
	require.NotNil(t, decodeErr.Cause)
}

func TestOpenAfterMagicTruncated(t *testing.T) {
	stream := compressStream(t, CompressionZstd, 64, payload(100))

	_, err := OpenAfterMagic(bytes.NewReader(stream[:len(stream)-3]))
	require.True(t, errors.IsKind(err, errors.KindTruncated))
}

func TestOpenAfterMagicZeroBlockSize(t *testing.T) {
	stream := binread.NewWriter().U32(uint32(CompressionZstd)).U32(0).U32(10).Bytes()

	_, err := OpenAfterMagic(bytes.NewReader(stream))
	require.True(t, errors.IsKind(err, errors.KindMalformedHeader))
}
