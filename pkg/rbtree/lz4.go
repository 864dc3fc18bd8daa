package rbtree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// ErrCorruptedBlock is returned when a compressed block cannot be restored.
var ErrCorruptedBlock = errors.New("corrupted compressed block")

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// Block tags. Tiny or high-entropy columns are not worth compressing and LZ4
// reports them as incompressible, so they are stored raw.
const (
	blockRaw byte = iota
	blockLZ4
)

// CompressUInt32Slice compresses a slice of uint32-s with LZ4.
func CompressUInt32Slice(data []uint32) []byte {
	raw := make([]byte, 0, len(data)*uint32ByteSize)
	for _, value := range data {
		raw = binary.LittleEndian.AppendUint32(raw, value)
	}

	compressed := make([]byte, 1+lz4.CompressBlockBound(len(raw)))

	written, err := lz4.CompressBlock(raw, compressed[1:], nil)
	if err != nil || written == 0 {
		return append([]byte{blockRaw}, raw...)
	}

	compressed[0] = blockLZ4

	return compressed[:1+written]
}

// DecompressUInt32Slice decompresses a slice of uint32-s previously compressed with LZ4.
// `result` must be preallocated.
func DecompressUInt32Slice(data []byte, result []uint32) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty block", ErrCorruptedBlock)
	}

	raw := data[1:]

	if data[0] == blockLZ4 {
		decompressed := make([]byte, len(result)*uint32ByteSize)

		n, err := lz4.UncompressBlock(raw, decompressed)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptedBlock, err)
		}

		raw = decompressed[:n]
	}

	if len(raw) != len(result)*uint32ByteSize {
		return fmt.Errorf("%w: %d bytes for %d values", ErrCorruptedBlock, len(raw), len(result))
	}

	for idx := range result {
		result[idx] = binary.LittleEndian.Uint32(raw[idx*uint32ByteSize:])
	}

	return nil
}

// DeltaEncodeUInt32Slice replaces each element with the difference from its
// predecessor, in place. The first element is left unchanged. This transforms
// sorted sequences into small, repetitive values that compress better with LZ4.
func DeltaEncodeUInt32Slice(data []uint32) {
	for i := len(data) - 1; i > 0; i-- {
		data[i] -= data[i-1]
	}
}

// DeltaDecodeUInt32Slice performs a prefix-sum to restore original values from
// deltas produced by DeltaEncodeUInt32Slice. The operation is performed in place.
func DeltaDecodeUInt32Slice(data []uint32) {
	for i := 1; i < len(data); i++ {
		data[i] += data[i-1]
	}
}
