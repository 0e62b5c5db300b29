// Package pe models the Portable Executable container: headers,
// sections and data directories. It parses a buffer into a validated
// in-memory image, supports structural mutations (trailer and
// signature removal, data-directory resizing and replacement) and
// re-serializes a correctly aligned, checksummed file. Directory
// payloads are never interpreted.
package pe

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pecarve/pecarve/internal/blob"
)

// peSignatureOffset is where the 16-bit offset of the PE header lives
// inside the DOS header (e_lfanew).
const peSignatureOffset = 0x3c

// checkSumDisplacement is the fixed offset of the CheckSum field from
// the start of the PE signature. It is identical for both optional
// header variants: 4 (signature) + 20 (file header) + 64.
const checkSumDisplacement = 4 + fileHeaderSize + 4*16

// Section is one entry of the section table together with its raw
// file content. Data is nil when PointerToRawData is zero (no file
// backing, e.g. pure BSS).
type Section struct {
	Header SectionHeader
	Data   blob.Blob
}

// Range is a half-open span [Start, End) of virtual addresses.
type Range struct {
	Start uint32
	End   uint32
}

// Len returns the number of addresses covered by the range.
func (r Range) Len() uint32 { return r.End - r.Start }

// Image is a parsed PE file. It exclusively owns its sections and
// directories; it is not safe for concurrent mutation.
type Image struct {
	dosStub    blob.Blob
	fileHeader FileHeader
	optMagic   uint16
	opt        optionalHeader
	dirs       []DataDirectory
	sections   []*Section

	trailerOffset int64
	trailer       blob.Blob

	// checksumOffset is the absolute offset of the CheckSum field in
	// the serialized file, recorded once at parse time.
	checksumOffset int64
}

// Parse reads and validates a PE image from b. It fails fast with a
// FormatError on any structural violation; a returned Image always
// satisfies the alignment, contiguity and overlap invariants.
func Parse(b blob.Blob) (*Image, error) {
	peOffset16, err := blob.Uint16LE(b, peSignatureOffset)
	if err != nil {
		return nil, formatErrf("not a PE file: missing DOS header")
	}
	peOffset := int64(peOffset16)
	if peOffset+4 > b.Len() {
		return nil, formatErrf("not a PE file")
	}

	r := io.NewSectionReader(b, peOffset, b.Len()-peOffset)

	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, formatErrf("not a PE file")
	}
	if sig != [4]byte{'P', 'E', 0, 0} {
		return nil, formatErrf("not a PE file")
	}

	im := &Image{
		dosStub:        b.Slice(0, peOffset),
		checksumOffset: peOffset + checkSumDisplacement,
	}

	if err := binary.Read(r, binary.LittleEndian, &im.fileHeader); err != nil {
		return nil, formatErrf("truncated COFF file header")
	}
	if err := binary.Read(r, binary.LittleEndian, &im.optMagic); err != nil {
		return nil, formatErrf("truncated optional header")
	}

	switch im.optMagic {
	case Magic32:
		opt := new(OptionalHeader32)
		if err := binary.Read(r, binary.LittleEndian, opt); err != nil {
			return nil, formatErrf("truncated optional header")
		}
		im.opt = opt
	case Magic64:
		opt := new(OptionalHeader64)
		if err := binary.Read(r, binary.LittleEndian, opt); err != nil {
			return nil, formatErrf("truncated optional header")
		}
		im.opt = opt
	default:
		return nil, formatErrf("unknown optional header type")
	}

	if stored := im.opt.checkSum(); stored != 0 {
		real, err := checksumWithFieldZeroed(b, im.checksumOffset)
		if err != nil {
			return nil, err
		}
		if stored != real {
			return nil, formatErrf("incorrect checksum")
		}
	}

	if im.opt.fileAlignment() == 0 {
		return nil, formatErrf("FileAlignment must be nonzero")
	}
	if im.opt.sectionAlignment() == 0 {
		return nil, formatErrf("SectionAlignment must be nonzero")
	}

	ndirs := int64(im.opt.numberOfRvaAndSizes())
	dirOffset := peOffset + 4 + fileHeaderSize + 2 + im.opt.size()
	if dirOffset+ndirs*dataDirectorySize > b.Len() {
		return nil, formatErrf("truncated data directories")
	}
	im.dirs = make([]DataDirectory, ndirs)
	if err := binary.Read(r, binary.LittleEndian, im.dirs); err != nil {
		return nil, formatErrf("truncated data directories")
	}

	fileAlign := im.opt.fileAlignment()
	im.sections = make([]*Section, 0, im.fileHeader.NumberOfSections)
	for idx := 0; idx < int(im.fileHeader.NumberOfSections); idx++ {
		var hdr SectionHeader
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return nil, formatErrf("truncated section table")
		}

		if hdr.PointerToRawData%fileAlign != 0 {
			return nil, formatErrf("section %s@%d is misaligned (%d)",
				hdr.NameString(), idx, hdr.PointerToRawData)
		}
		if hdr.SizeOfRawData%fileAlign != 0 {
			return nil, formatErrf("size of section %s@%d is misaligned (%d)",
				hdr.NameString(), idx, hdr.SizeOfRawData)
		}

		sec := &Section{Header: hdr}
		if hdr.PointerToRawData != 0 {
			end := int64(hdr.PointerToRawData) + int64(hdr.SizeOfRawData)
			if end > b.Len() {
				return nil, formatErrf("section %s@%d extends past end of file",
					hdr.NameString(), idx)
			}
			sec.Data = b.Slice(int64(hdr.PointerToRawData), end)
		}
		im.sections = append(im.sections, sec)
	}

	present := make([]*Section, 0, len(im.sections))
	for _, sec := range im.sections {
		if sec.Header.SizeOfRawData != 0 {
			present = append(present, sec)
		}
	}
	if len(present) == 0 {
		return nil, formatErrf("no present sections")
	}
	sort.SliceStable(present, func(i, j int) bool {
		return present[i].Header.PointerToRawData < present[j].Header.PointerToRawData
	})
	for i := 1; i < len(present); i++ {
		prev, cur := &present[i-1].Header, &present[i].Header
		if prev.PointerToRawData+prev.SizeOfRawData != cur.PointerToRawData {
			return nil, formatErrf("holes between sections")
		}
	}

	last := &present[len(present)-1].Header
	im.trailerOffset = int64(last.PointerToRawData) + int64(last.SizeOfRawData)
	im.trailer = b.Slice(im.trailerOffset, b.Len())

	if err := im.checkVirtualLayout(); err != nil {
		return nil, err
	}
	return im, nil
}

// checkVirtualLayout verifies that every section's virtual address is
// SectionAlignment-aligned and that no two virtual ranges overlap.
func (im *Image) checkVirtualLayout() error {
	sectAlign := im.opt.sectionAlignment()

	byVA := make([]*Section, len(im.sections))
	copy(byVA, im.sections)
	sort.SliceStable(byVA, func(i, j int) bool {
		return byVA[i].Header.VirtualAddress < byVA[j].Header.VirtualAddress
	})

	var prev *SectionHeader
	for _, sec := range byVA {
		h := &sec.Header
		if h.VirtualAddress%sectAlign != 0 {
			return formatErrf("sections are misaligned in memory")
		}
		if prev != nil && prev.VirtualAddress+prev.VirtualSize > h.VirtualAddress {
			return formatErrf("sections overlap in memory")
		}
		prev = h
	}
	return nil
}

// Machine returns the COFF machine type.
func (im *Image) Machine() uint16 { return im.fileHeader.Machine }

// Is64 reports whether the image uses the 64-bit optional header.
func (im *Image) Is64() bool { return im.optMagic == Magic64 }

// HasTrailer reports whether any bytes follow the last section's raw
// data.
func (im *Image) HasTrailer() bool { return im.trailer.Len() > 0 }

// RemoveTrailer removes the signature, if any, and then discards the
// entire trailer.
func (im *Image) RemoveTrailer() error {
	if err := im.RemoveSignature(); err != nil {
		return err
	}
	im.trailer = blob.FromBytes(nil)
	return nil
}

// HasSignature reports whether the security directory references a
// digital-signature blob.
func (im *Image) HasSignature() bool {
	return len(im.dirs) > DirectorySecurity &&
		im.dirs[DirectorySecurity].VirtualAddress != 0
}

// RemoveSignature truncates the signature blob off the trailer and
// zeroes the security directory entry. It is a no-op when no signature
// is present and returns an InvariantError when the signature is not
// wholly positioned at the end of the trailer.
func (im *Image) RemoveSignature() error {
	if len(im.dirs) <= DirectorySecurity {
		return nil
	}
	dd := &im.dirs[DirectorySecurity]
	if dd.Size == 0 {
		return nil
	}

	// The security directory holds a file offset, not an RVA.
	fileEnd := im.trailerOffset + im.trailer.Len()
	if int64(dd.VirtualAddress)+int64(dd.Size) != fileEnd {
		return invariantErrf("signature is not at the end of the file")
	}
	if int64(dd.VirtualAddress) < im.trailerOffset {
		return invariantErrf("signature is not contained in the pe trailer")
	}

	im.trailer = im.trailer.Slice(0, im.trailer.Len()-int64(dd.Size))
	dd.VirtualAddress = 0
	dd.Size = 0
	return nil
}

// HasDirectory reports whether the data directory at idx is present.
// An out-of-range index or a zero virtual address means absent.
func (im *Image) HasDirectory(idx int) bool {
	_, ok := im.FindDirectory(idx)
	return ok
}

// FindDirectory returns the virtual range referenced by the data
// directory at idx. Out-of-range indices and zero virtual addresses
// report absence, never an error.
func (im *Image) FindDirectory(idx int) (Range, bool) {
	if idx < 0 || idx >= len(im.dirs) {
		return Range{}, false
	}
	dd := im.dirs[idx]
	if dd.VirtualAddress == 0 {
		return Range{}, false
	}
	return Range{Start: dd.VirtualAddress, End: dd.VirtualAddress + dd.Size}, true
}

// ReadVirtual materializes the virtual range [start, stop) from the
// section covering it, zero-filling the tail beyond the section's raw
// data. It reports false when no single section covers the range.
func (im *Image) ReadVirtual(start, stop uint32) (blob.Blob, bool) {
	for _, sec := range im.sections {
		h := &sec.Header
		if h.VirtualAddress > start || h.VirtualAddress+h.VirtualSize < stop {
			continue
		}
		secOff := int64(start - h.VirtualAddress)
		want := int64(stop - start)

		initLen := int64(h.SizeOfRawData) - secOff
		if initLen > want {
			initLen = want
		}
		if initLen < 0 || sec.Data == nil {
			initLen = 0
		}
		return blob.Join(
			sliceOrNil(sec.Data, secOff, secOff+initLen),
			blob.Pad(want-initLen),
		), true
	}
	return nil, false
}

func sliceOrNil(b blob.Blob, lo, hi int64) blob.Blob {
	if b == nil || lo >= hi {
		return nil
	}
	return b.Slice(lo, hi)
}
