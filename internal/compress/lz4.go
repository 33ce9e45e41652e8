// internal/compress/lz4.go
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// SizePrefixLen is the length of the little-endian uncompressed size prefix
const SizePrefixLen = 4

// MaxDecompressedSize bounds the size a prefix may claim
const MaxDecompressedSize = 16 << 20

var (
	ErrTruncated    = errors.New("compressed buffer truncated")
	ErrSizeMismatch = errors.New("decompressed size does not match prefix")
	ErrSizeTooLarge = errors.New("declared decompressed size too large")
)

// Compress encodes src as an LZ4 block preceded by its uncompressed length
func Compress(src []byte) ([]byte, error) {
	out := make([]byte, SizePrefixLen+lz4.CompressBlockBound(len(src)))
	binary.LittleEndian.PutUint32(out, uint32(len(src)))

	if len(src) == 0 {
		return out[:SizePrefixLen], nil
	}

	n, err := lz4.CompressBlock(src, out[SizePrefixLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compress block: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("failed to compress block: empty output for %d bytes", len(src))
	}

	return out[:SizePrefixLen+n], nil
}

// Decompress reverses Compress
func Decompress(src []byte) ([]byte, error) {
	if len(src) < SizePrefixLen {
		return nil, ErrTruncated
	}

	size := binary.LittleEndian.Uint32(src)
	if size > MaxDecompressedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSizeTooLarge, size)
	}

	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}

	n, err := lz4.UncompressBlock(src[SizePrefixLen:], out)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress block: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, n, size)
	}

	return out, nil
}
