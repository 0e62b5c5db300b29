package pe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pecarve/pecarve/internal/blob"
)

// Fixed layout of images produced by buildImage: the DOS stub is 0x40
// bytes and the directory table always has 16 entries, so every header
// lands at a known offset.
const (
	testFileAlign = 0x200
	testSectAlign = 0x1000

	testPEOffset       = 0x40
	testMagicOffset    = testPEOffset + 4 + fileHeaderSize           // 0x58
	testOptOffset      = testMagicOffset + 2                         // 0x5a
	testDirsOffset     = testOptOffset + optionalHeader32Size        // 0xb8
	testSectionsOffset = testDirsOffset + 16*dataDirectorySize       // 0x138
	testChecksumOffset = testPEOffset + checkSumDisplacement         // 0xa8
)

type testSection struct {
	name  string
	va    uint32
	vsize uint32
	data  []byte
	chars uint32
}

type testImage struct {
	is64     bool
	dirs     [16]DataDirectory
	sections []testSection
	trailer  []byte
	sigSize  uint32 // nonzero: security directory anchored at file end
	checksum bool   // store a real checksum instead of zero
}

// build assembles a well-formed PE file byte-for-byte the way Store
// lays one out, so unmutated round trips can compare exact bytes.
func (ti *testImage) build(t *testing.T) []byte {
	t.Helper()

	optSize := uint16(2 + optionalHeader32Size + 16*dataDirectorySize)
	if ti.is64 {
		optSize = uint16(2 + optionalHeader64Size + 16*dataDirectorySize)
	}

	headerEnd := int64(testPEOffset) + 4 + fileHeaderSize + int64(optSize) +
		int64(len(ti.sections))*sectionHeaderSize
	firstOffset := alignUp(headerEnd, testFileAlign)

	// Pre-compute raw layout so the security directory, which holds a
	// file offset, can be anchored at the true end of the file.
	offset := uint32(firstOffset)
	rawEnd := offset
	for _, sec := range ti.sections {
		if sec.data != nil {
			rawEnd += alignUp32(uint32(len(sec.data)), testFileAlign)
		}
	}
	fileEnd := rawEnd + uint32(len(ti.trailer))
	if ti.sigSize > 0 {
		ti.dirs[DirectorySecurity] = DataDirectory{
			VirtualAddress: fileEnd - ti.sigSize,
			Size:           ti.sigSize,
		}
	}

	var buf bytes.Buffer
	stub := make([]byte, testPEOffset)
	stub[0], stub[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(stub[0x3c:], testPEOffset)
	buf.Write(stub)
	buf.WriteString("PE\x00\x00")

	machine := uint16(MachineI386)
	if ti.is64 {
		machine = MachineAMD64
	}
	packRecord(&buf, &FileHeader{
		Machine:              machine,
		NumberOfSections:     uint16(len(ti.sections)),
		SizeOfOptionalHeader: optSize,
	})

	if ti.is64 {
		packRecord(&buf, uint16(Magic64))
		packRecord(&buf, &OptionalHeader64{
			AddressOfEntryPoint: 0x1000,
			ImageBase:           0x140000000,
			SectionAlignment:    testSectAlign,
			FileAlignment:       testFileAlign,
			Subsystem:           3,
			NumberOfRvaAndSizes: 16,
		})
	} else {
		packRecord(&buf, uint16(Magic32))
		packRecord(&buf, &OptionalHeader32{
			AddressOfEntryPoint: 0x1000,
			ImageBase:           0x400000,
			SectionAlignment:    testSectAlign,
			FileAlignment:       testFileAlign,
			Subsystem:           3,
			NumberOfRvaAndSizes: 16,
		})
	}
	packRecord(&buf, ti.dirs[:])

	for _, sec := range ti.sections {
		var name [8]byte
		copy(name[:], sec.name)
		hdr := SectionHeader{
			Name:            name,
			VirtualSize:     sec.vsize,
			VirtualAddress:  sec.va,
			Characteristics: sec.chars,
		}
		if sec.data != nil {
			hdr.SizeOfRawData = alignUp32(uint32(len(sec.data)), testFileAlign)
			hdr.PointerToRawData = offset
			offset += hdr.SizeOfRawData
		}
		packRecord(&buf, &hdr)
	}

	buf.Write(make([]byte, firstOffset-headerEnd))
	for _, sec := range ti.sections {
		if sec.data == nil {
			continue
		}
		padded := make([]byte, alignUp32(uint32(len(sec.data)), testFileAlign))
		copy(padded, sec.data)
		buf.Write(padded)
	}
	buf.Write(ti.trailer)

	out := buf.Bytes()
	if ti.checksum {
		sum, err := Checksum(blob.FromBytes(out))
		if err != nil {
			t.Fatalf("checksum: %v", err)
		}
		binary.LittleEndian.PutUint32(out[testChecksumOffset:], sum)
	}
	return out
}

// threeSectionImage is the common fixture: .text at VA 0x1000 holding
// the import directory, .data at 0x2000, .rsrc at 0x3000.
func threeSectionImage() *testImage {
	ti := &testImage{
		sections: []testSection{
			{name: ".text", va: 0x1000, vsize: 0x100, data: bytes.Repeat([]byte{0xAA}, 0x100), chars: scnMemRead | scnMemExecute},
			{name: ".data", va: 0x2000, vsize: 0x1000, data: bytes.Repeat([]byte{0xBB}, 0x400), chars: scnMemRead | scnMemWrite},
			{name: ".rsrc", va: 0x3000, vsize: 0x1000, data: bytes.Repeat([]byte{0xCC}, 0x200), chars: scnMemRead},
		},
	}
	ti.dirs[DirectoryImport] = DataDirectory{VirtualAddress: 0x1000, Size: 0x100}
	return ti
}

func parseImage(t *testing.T, data []byte) *Image {
	t.Helper()
	im, err := Parse(blob.FromBytes(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return im
}

func storeBytes(t *testing.T, im *Image) []byte {
	t.Helper()
	out, err := im.Store()
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	raw, err := blob.Bytes(out)
	if err != nil {
		t.Fatalf("materializing output: %v", err)
	}
	return raw
}
