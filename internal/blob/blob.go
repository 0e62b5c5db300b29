// Package blob provides immutable, lazily materialized byte buffers.
//
// A Blob is a read-only view: slicing and joining never copy the
// underlying data, and a zero-fill blob occupies no memory at all.
// Views may be freely aliased as long as the source bytes stay
// immutable.
package blob

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Blob is an immutable random-access byte sequence.
type Blob interface {
	// Len returns the total number of bytes.
	Len() int64
	// Slice returns the half-open window [lo, hi). It panics if the
	// range is out of bounds, mirroring builtin slice semantics.
	Slice(lo, hi int64) Blob
	io.ReaderAt
	io.WriterTo
}

// FromBytes wraps b without copying. The caller must not modify b
// afterwards.
func FromBytes(b []byte) Blob { return memBlob(b) }

// Pad returns n zero bytes backed by no storage.
func Pad(n int64) Blob {
	if n < 0 {
		panic(fmt.Sprintf("blob: negative pad length %d", n))
	}
	return padBlob(n)
}

// FromReaderAt returns a lazy window of size bytes over r starting at
// offset 0. Reads are delegated to r on demand.
func FromReaderAt(r io.ReaderAt, size int64) Blob {
	return &readerBlob{r: r, n: size}
}

// Join concatenates parts into a single blob without copying.
// Empty parts are dropped and nested joins are flattened.
func Join(parts ...Blob) Blob {
	flat := make([]Blob, 0, len(parts))
	for _, p := range parts {
		if p == nil || p.Len() == 0 {
			continue
		}
		if j, ok := p.(*joinBlob); ok {
			flat = append(flat, j.parts...)
			continue
		}
		flat = append(flat, p)
	}
	switch len(flat) {
	case 0:
		return memBlob(nil)
	case 1:
		return flat[0]
	}
	starts := make([]int64, len(flat))
	var size int64
	for i, p := range flat {
		starts[i] = size
		size += p.Len()
	}
	return &joinBlob{parts: flat, starts: starts, size: size}
}

// Bytes materializes b. When b already wraps a byte slice the slice is
// returned directly, so the result must be treated as read-only.
func Bytes(b Blob) ([]byte, error) {
	if m, ok := b.(memBlob); ok {
		return m, nil
	}
	out := make([]byte, b.Len())
	if len(out) == 0 {
		return out, nil
	}
	if _, err := b.ReadAt(out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Uint16LE loads a little-endian 16-bit value at off.
func Uint16LE(b Blob, off int64) (uint16, error) {
	var buf [2]byte
	if _, err := b.ReadAt(buf[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// Uint32LE loads a little-endian 32-bit value at off.
func Uint32LE(b Blob, off int64) (uint32, error) {
	var buf [4]byte
	if _, err := b.ReadAt(buf[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func checkRange(lo, hi, n int64) {
	if lo < 0 || hi < lo || hi > n {
		panic(fmt.Sprintf("blob: slice bounds out of range [%d:%d] with length %d", lo, hi, n))
	}
}

type memBlob []byte

func (m memBlob) Len() int64 { return int64(len(m)) }

func (m memBlob) Slice(lo, hi int64) Blob {
	checkRange(lo, hi, m.Len())
	return m[lo:hi]
}

func (m memBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > m.Len() {
		return 0, io.EOF
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m memBlob) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m)
	return int64(n), err
}

type padBlob int64

func (z padBlob) Len() int64 { return int64(z) }

func (z padBlob) Slice(lo, hi int64) Blob {
	checkRange(lo, hi, z.Len())
	return padBlob(hi - lo)
}

func (z padBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > z.Len() {
		return 0, io.EOF
	}
	avail := z.Len() - off
	n := len(p)
	if int64(n) > avail {
		n = int(avail)
	}
	for i := 0; i < n; i++ {
		p[i] = 0
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (z padBlob) WriteTo(w io.Writer) (int64, error) {
	var chunk [4096]byte
	var written int64
	for written < int64(z) {
		n := int64(len(chunk))
		if int64(z)-written < n {
			n = int64(z) - written
		}
		m, err := w.Write(chunk[:n])
		written += int64(m)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

type readerBlob struct {
	r   io.ReaderAt
	off int64
	n   int64
}

func (b *readerBlob) Len() int64 { return b.n }

func (b *readerBlob) Slice(lo, hi int64) Blob {
	checkRange(lo, hi, b.n)
	return &readerBlob{r: b.r, off: b.off + lo, n: hi - lo}
}

func (b *readerBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > b.n {
		return 0, io.EOF
	}
	avail := b.n - off
	short := false
	if int64(len(p)) > avail {
		p = p[:avail]
		short = true
	}
	n, err := b.r.ReadAt(p, b.off+off)
	if err == nil && short {
		err = io.EOF
	}
	return n, err
}

func (b *readerBlob) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, io.NewSectionReader(b.r, b.off, b.n))
}

type joinBlob struct {
	parts  []Blob
	starts []int64
	size   int64
}

func (j *joinBlob) Len() int64 { return j.size }

func (j *joinBlob) Slice(lo, hi int64) Blob {
	checkRange(lo, hi, j.size)
	if lo == hi {
		return memBlob(nil)
	}
	first := j.partAt(lo)
	trimmed := make([]Blob, 0, len(j.parts)-first)
	for i := first; i < len(j.parts) && j.starts[i] < hi; i++ {
		p := j.parts[i]
		plo, phi := int64(0), p.Len()
		if j.starts[i] < lo {
			plo = lo - j.starts[i]
		}
		if j.starts[i]+p.Len() > hi {
			phi = hi - j.starts[i]
		}
		trimmed = append(trimmed, p.Slice(plo, phi))
	}
	return Join(trimmed...)
}

func (j *joinBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > j.size {
		return 0, io.EOF
	}
	total := 0
	for i := j.partAt(off); i < len(j.parts) && total < len(p); i++ {
		part := j.parts[i]
		n, err := part.ReadAt(p[total:], off+int64(total)-j.starts[i])
		total += n
		if err != nil && err != io.EOF {
			return total, err
		}
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (j *joinBlob) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, p := range j.parts {
		n, err := p.WriteTo(w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// partAt returns the index of the part containing offset off.
func (j *joinBlob) partAt(off int64) int {
	i := sort.Search(len(j.starts), func(i int) bool { return j.starts[i] > off })
	if i > 0 {
		i--
	}
	return i
}
