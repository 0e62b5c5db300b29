package pe

import (
	"sort"

	"github.com/pecarve/pecarve/internal/blob"
)

// ResizeDirectory resizes the data directory at idx to size bytes and
// returns the virtual range reserved for it. Shrinking (or resizing
// within the owning section's current virtual size) happens in place;
// growing relocates the owning section into the first sufficiently
// large, SectionAlignment-aligned hole between the other sections, or
// past the end of all of them.
//
// The directory must be backed by exactly one section whose virtual
// range matches it exactly; otherwise an UnsupportedError is returned.
func (im *Image) ResizeDirectory(idx int, size uint32) (Range, error) {
	_, r, err := im.resizeDirectory(idx, size)
	return r, err
}

// SetDirectory performs the same placement as ResizeDirectory for
// len(data) bytes and replaces the owning section's raw content with
// data. File offsets and raw sizes are recomputed at store time.
func (im *Image) SetDirectory(idx int, data blob.Blob) error {
	secIdx, _, err := im.resizeDirectory(idx, uint32(data.Len()))
	if err != nil {
		return err
	}
	im.sections[secIdx].Data = data
	return nil
}

func (im *Image) resizeDirectory(idx int, size uint32) (int, Range, error) {
	if idx < 0 || idx >= len(im.dirs) {
		return 0, Range{}, unsupportedErrf("can't modify a directory that is not associated with a section")
	}
	dd := &im.dirs[idx]

	secIdx := im.directorySection(dd.VirtualAddress, dd.VirtualAddress+dd.Size)
	if secIdx < 0 {
		return 0, Range{}, unsupportedErrf("can't modify a directory that is not associated with a section")
	}
	sec := im.sections[secIdx]

	if sec.Header.VirtualSize >= size {
		sec.Header.VirtualSize = size
		dd.Size = size
		return secIdx, Range{Start: sec.Header.VirtualAddress, End: sec.Header.VirtualAddress + size}, nil
	}

	hole := im.findVirtualHole(secIdx, size)
	sec.Header.VirtualAddress = hole.Start
	sec.Header.VirtualSize = size
	dd.VirtualAddress = hole.Start
	dd.Size = size
	return secIdx, hole, nil
}

// directorySection returns the index of the section whose virtual
// range is exactly [start, stop), or -1. Directories backed by
// multiple or partial sections are not supported, and the lookup is by
// index rather than identity since sections are relocated in place.
func (im *Image) directorySection(start, stop uint32) int {
	for idx, sec := range im.sections {
		h := &sec.Header
		if h.VirtualAddress == start && h.VirtualAddress+h.VirtualSize == stop {
			return idx
		}
	}
	return -1
}

// findVirtualHole runs a first-fit search over the gaps between every
// section except the one at excludeIdx, returning an aligned
// reservation of at least size bytes. When no gap fits, the reservation
// is appended past the end of all other sections.
func (im *Image) findVirtualHole(excludeIdx int, size uint32) Range {
	align := im.opt.sectionAlignment()

	others := make([]*SectionHeader, 0, len(im.sections)-1)
	for idx, sec := range im.sections {
		if idx != excludeIdx {
			others = append(others, &sec.Header)
		}
	}
	if len(others) == 0 {
		// Single-section image: reuse the space past the section's own
		// current end, since the section is being moved anyway.
		h := &im.sections[excludeIdx].Header
		start := alignUp32(h.VirtualAddress+h.VirtualSize, align)
		return Range{Start: start, End: alignUp32(start+size, align)}
	}

	sort.SliceStable(others, func(i, j int) bool {
		return others[i].VirtualAddress < others[j].VirtualAddress
	})

	for i := 1; i < len(others); i++ {
		start := alignUp32(others[i-1].VirtualAddress+others[i-1].VirtualSize, align)
		stop := others[i].VirtualAddress
		if stop > start && stop-start >= size {
			return Range{Start: start, End: alignUp32(start+size, align)}
		}
	}

	last := others[len(others)-1]
	start := alignUp32(last.VirtualAddress+last.VirtualSize, align)
	return Range{Start: start, End: alignUp32(start+size, align)}
}
