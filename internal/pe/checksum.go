package pe

import (
	"encoding/binary"
	"io"

	"github.com/pecarve/pecarve/internal/blob"
)

const checksumBlockSize = 0x1000

// Checksum computes the PE header checksum of b: the unsigned sum of
// every little-endian 16-bit word, folded into 16 bits, plus the total
// length truncated to 32 bits.
//
// Both verification and recomputation call this with the checksum field
// zeroed in the input. A trailing odd byte is ignored; files produced
// by Store are always FileAlignment-padded, so the case only arises for
// hand-built buffers.
func Checksum(b blob.Blob) (uint32, error) {
	total := b.Len()
	chunk := make([]byte, checksumBlockSize)

	var r uint64
	for off := int64(0); off < total; off += checksumBlockSize {
		n := int64(len(chunk))
		if total-off < n {
			n = total - off
		}
		if _, err := b.ReadAt(chunk[:n], off); err != nil && err != io.EOF {
			return 0, err
		}
		for i := int64(0); i+1 < n; i += 2 {
			r += uint64(binary.LittleEndian.Uint16(chunk[i:]))
		}
	}

	// Fold carries until the sum fits in 16 bits. Intermediate sums can
	// exceed 32 bits, so a single low/high split is not enough.
	for r > 0xffff {
		c := r
		r = 0
		for c != 0 {
			r += c & 0xffff
			c >>= 16
		}
	}

	return uint32(r + uint64(total)), nil
}

// checksumWithFieldZeroed computes the checksum of b as if the 4-byte
// checksum field at off were zero, without copying the buffer.
func checksumWithFieldZeroed(b blob.Blob, off int64) (uint32, error) {
	zeroed := blob.Join(b.Slice(0, off), blob.Pad(4), b.Slice(off+4, b.Len()))
	return Checksum(zeroed)
}
