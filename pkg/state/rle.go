package state

import (
	"bytes"

	"github.com/lexlapax/agentdb/pkg/errors"
)

// rleEscape introduces either a run record or an escaped literal. The
// two-byte escape [0xFF 0x00] encodes a single literal 0xFF, so raw 0xFF
// bytes in the input can never be confused with a run-record header.
const rleEscape = 0xFF

// maxRunLength is the largest run a single record can carry; longer runs are
// split across records.
const maxRunLength = 255

// minRunLength is the shortest run worth encoding: a record is three bytes,
// so runs of four or more shrink. Runs of 0xFF are encoded from length two,
// since each literal 0xFF costs two bytes escaped.
const minRunLength = 4

// rleEncode run-length encodes data. The encoding is exact for all inputs;
// whether it shrinks anything is the caller's concern.
func rleEncode(data []byte) []byte {
	out := make([]byte, 0, len(data))

	for i := 0; i < len(data); {
		b := data[i]
		n := 1
		for i+n < len(data) && data[i+n] == b && n < maxRunLength {
			n++
		}

		switch {
		case b == rleEscape && n >= 2:
			out = append(out, rleEscape, byte(n), b)
		case b == rleEscape:
			out = append(out, rleEscape, 0x00)
		case n >= minRunLength:
			out = append(out, rleEscape, byte(n), b)
		default:
			for j := 0; j < n; j++ {
				out = append(out, b)
			}
		}
		i += n
	}

	return out
}

// rleDecode reverses rleEncode. Truncated records are reported as invalid
// input rather than silently dropped.
func rleDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))

	for i := 0; i < len(data); {
		b := data[i]
		if b != rleEscape {
			out = append(out, b)
			i++
			continue
		}

		if i+1 >= len(data) {
			return nil, errors.Wrap(errors.ErrInvalidArgument, "truncated escape at offset %d", i)
		}

		count := data[i+1]
		if count == 0 {
			out = append(out, rleEscape)
			i += 2
			continue
		}

		if i+2 >= len(data) {
			return nil, errors.Wrap(errors.ErrInvalidArgument, "truncated run record at offset %d", i)
		}

		out = append(out, bytes.Repeat([]byte{data[i+2]}, int(count))...)
		i += 3
	}

	return out, nil
}
