package pe

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pecarve/pecarve/internal/blob"
)

func TestResizeDirectoryShrinksInPlace(t *testing.T) {
	im := parseImage(t, threeSectionImage().build(t))

	r, err := im.ResizeDirectory(DirectoryImport, 0x80)
	if err != nil {
		t.Fatalf("ResizeDirectory() error = %v", err)
	}
	if r != (Range{Start: 0x1000, End: 0x1080}) {
		t.Errorf("assigned range = %+v, want [0x1000, 0x1080)", r)
	}

	// Shrinking never moves the directory.
	dir, _ := im.FindDirectory(DirectoryImport)
	if dir != (Range{Start: 0x1000, End: 0x1080}) {
		t.Errorf("directory = %+v after shrink", dir)
	}
	if h := &im.sections[0].Header; h.VirtualAddress != 0x1000 || h.VirtualSize != 0x80 {
		t.Errorf("owning section = [0x%X, +0x%X)", h.VirtualAddress, h.VirtualSize)
	}
}

func TestResizeDirectoryRelocatesPastEnd(t *testing.T) {
	// Import table fills all of .text's 0x100-byte virtual size; the
	// gaps between the remaining sections are zero, so growing to
	// 0x150 must append past the end of the virtual layout.
	im := parseImage(t, threeSectionImage().build(t))

	r, err := im.ResizeDirectory(DirectoryImport, 0x150)
	if err != nil {
		t.Fatalf("ResizeDirectory() error = %v", err)
	}
	if r != (Range{Start: 0x4000, End: 0x5000}) {
		t.Errorf("assigned range = %+v, want [0x4000, 0x5000)", r)
	}

	dir, _ := im.FindDirectory(DirectoryImport)
	if dir != (Range{Start: 0x4000, End: 0x4150}) {
		t.Errorf("directory = %+v, want [0x4000, 0x4150)", dir)
	}
	if h := &im.sections[0].Header; h.VirtualAddress != 0x4000 || h.VirtualSize != 0x150 {
		t.Errorf("relocated section = [0x%X, +0x%X)", h.VirtualAddress, h.VirtualSize)
	}

	// The other two sections must not move.
	if h := &im.sections[1].Header; h.VirtualAddress != 0x2000 || h.VirtualSize != 0x1000 {
		t.Errorf(".data moved to [0x%X, +0x%X)", h.VirtualAddress, h.VirtualSize)
	}
	if h := &im.sections[2].Header; h.VirtualAddress != 0x3000 || h.VirtualSize != 0x1000 {
		t.Errorf(".rsrc moved to [0x%X, +0x%X)", h.VirtualAddress, h.VirtualSize)
	}

	// The post-condition layout is still valid and serializable.
	if _, err := im.Store(); err != nil {
		t.Errorf("Store() after relocation: %v", err)
	}
}

func TestResizeDirectoryFirstFitHole(t *testing.T) {
	ti := &testImage{
		sections: []testSection{
			{name: ".idata", va: 0x1000, vsize: 0x100, data: make([]byte, 0x100)},
			{name: ".data", va: 0x2000, vsize: 0x100, data: make([]byte, 0x200)},
			{name: ".rsrc", va: 0x5000, vsize: 0x1000, data: make([]byte, 0x200)},
		},
	}
	ti.dirs[DirectoryImport] = DataDirectory{VirtualAddress: 0x1000, Size: 0x100}
	im := parseImage(t, ti.build(t))

	// First fit: the hole between .data ([0x2000, 0x2100), rounded up
	// to 0x3000) and .rsrc (0x5000) takes the grown directory.
	r, err := im.ResizeDirectory(DirectoryImport, 0x150)
	if err != nil {
		t.Fatalf("ResizeDirectory() error = %v", err)
	}
	if r != (Range{Start: 0x3000, End: 0x4000}) {
		t.Errorf("assigned range = %+v, want [0x3000, 0x4000)", r)
	}
}

func TestResizeDirectoryUnsupported(t *testing.T) {
	ti := threeSectionImage()
	// Points into the middle of .data rather than spanning a section.
	ti.dirs[DirectoryResource] = DataDirectory{VirtualAddress: 0x2040, Size: 0x80}
	im := parseImage(t, ti.build(t))

	for _, idx := range []int{DirectoryResource, DirectoryExport, 40} {
		_, err := im.ResizeDirectory(idx, 0x10)
		var ue *UnsupportedError
		if !errors.As(err, &ue) {
			t.Errorf("ResizeDirectory(%d) error = %T(%v), want *UnsupportedError", idx, err, err)
		}
	}
}

func TestResizeDirectorySequence(t *testing.T) {
	im := parseImage(t, threeSectionImage().build(t))

	// Grow, grow again, then shrink; the directory/section pairing
	// survives every step and the layout stays valid throughout.
	sizes := []uint32{0x150, 0x1200, 0x40}
	for _, size := range sizes {
		if _, err := im.ResizeDirectory(DirectoryImport, size); err != nil {
			t.Fatalf("ResizeDirectory(%#x) error = %v", size, err)
		}
		if _, err := im.Store(); err != nil {
			t.Fatalf("Store() after resize to %#x: %v", size, err)
		}
		dir, ok := im.FindDirectory(DirectoryImport)
		if !ok || dir.Len() != size {
			t.Fatalf("directory = (%+v, %v) after resize to %#x", dir, ok, size)
		}
	}
}

func TestSetDirectory(t *testing.T) {
	im := parseImage(t, threeSectionImage().build(t))

	payload := bytes.Repeat([]byte{0x5A}, 0x150)
	if err := im.SetDirectory(DirectoryImport, blob.FromBytes(payload)); err != nil {
		t.Fatalf("SetDirectory() error = %v", err)
	}

	out := storeBytes(t, im)
	im2 := parseImage(t, out)

	dir, ok := im2.FindDirectory(DirectoryImport)
	if !ok || dir.Len() != 0x150 {
		t.Fatalf("reparsed directory = (%+v, %v)", dir, ok)
	}
	b, ok := im2.ReadVirtual(dir.Start, dir.End)
	if !ok {
		t.Fatal("reparsed directory not covered by a section")
	}
	got, err := blob.Bytes(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("directory contents do not round-trip through store")
	}
}
