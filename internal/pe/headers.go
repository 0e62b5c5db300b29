package pe

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
)

// Optional header magic values.
const (
	Magic32 = 0x10b // PE32
	Magic64 = 0x20b // PE32+
)

// Machine types (IMAGE_FILE_MACHINE_*).
const (
	MachineI386  = 0x14c
	MachineAMD64 = 0x8664
	MachineARM   = 0x1c0
	MachineARM64 = 0xaa64
)

// Data directory indices (IMAGE_DIRECTORY_ENTRY_*).
const (
	DirectoryExport = iota
	DirectoryImport
	DirectoryResource
	DirectoryException
	DirectorySecurity
	DirectoryBaseReloc
	DirectoryDebug
	DirectoryArchitecture
	DirectoryGlobalPtr
	DirectoryTLS
	DirectoryLoadConfig
	DirectoryBoundImport
	DirectoryIAT
	DirectoryDelayImport
	DirectoryCOMDescriptor
)

var directoryNames = [...]string{
	"export", "import", "resource", "exception", "security",
	"basereloc", "debug", "architecture", "globalptr", "tls",
	"loadconfig", "boundimport", "iat", "delayimport", "comdescriptor",
}

// DirectoryName returns a short name for a data directory index, or
// "" when the index is outside the well-known range.
func DirectoryName(idx int) string {
	if idx < 0 || idx >= len(directoryNames) {
		return ""
	}
	return directoryNames[idx]
}

// Section characteristics flags used for the permission summary.
const (
	scnMemExecute = 0x20000000
	scnMemRead    = 0x40000000
	scnMemWrite   = 0x80000000
)

// Record byte sizes. The optional header sizes exclude the 2-byte
// magic, which is decoded separately to select the variant.
const (
	fileHeaderSize       = 20
	optionalHeader32Size = 94
	optionalHeader64Size = 110
	dataDirectorySize    = 8
	sectionHeaderSize    = 40
)

// FileHeader is the COFF file header (IMAGE_FILE_HEADER).
type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// OptionalHeader32 is IMAGE_OPTIONAL_HEADER32 without the leading magic.
type OptionalHeader32 struct {
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Reserved1                   uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

// OptionalHeader64 is IMAGE_OPTIONAL_HEADER64 without the leading magic.
type OptionalHeader64 struct {
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Reserved1                   uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

// DataDirectory is one IMAGE_DATA_DIRECTORY entry: a weak reference
// into the virtual-address space (or, for the security directory, a
// file offset into the trailer).
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// SectionHeader is IMAGE_SECTION_HEADER. VirtualSize occupies the
// union historically shared with PhysicalAddress; this model only ever
// uses the VirtualSize interpretation.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// NameString returns the section name with NUL padding stripped.
func (h *SectionHeader) NameString() string {
	return strings.TrimRight(string(h.Name[:]), "\x00")
}

// optionalHeader abstracts over the two variants for the handful of
// fields the container model needs.
type optionalHeader interface {
	fileAlignment() uint32
	sectionAlignment() uint32
	checkSum() uint32
	setCheckSum(v uint32)
	numberOfRvaAndSizes() uint32
	size() int64
	pack(w io.Writer) error
}

func (h *OptionalHeader32) fileAlignment() uint32       { return h.FileAlignment }
func (h *OptionalHeader32) sectionAlignment() uint32    { return h.SectionAlignment }
func (h *OptionalHeader32) checkSum() uint32            { return h.CheckSum }
func (h *OptionalHeader32) setCheckSum(v uint32)        { h.CheckSum = v }
func (h *OptionalHeader32) numberOfRvaAndSizes() uint32 { return h.NumberOfRvaAndSizes }
func (h *OptionalHeader32) size() int64                 { return optionalHeader32Size }
func (h *OptionalHeader32) pack(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

func (h *OptionalHeader64) fileAlignment() uint32       { return h.FileAlignment }
func (h *OptionalHeader64) sectionAlignment() uint32    { return h.SectionAlignment }
func (h *OptionalHeader64) checkSum() uint32            { return h.CheckSum }
func (h *OptionalHeader64) setCheckSum(v uint32)        { h.CheckSum = v }
func (h *OptionalHeader64) numberOfRvaAndSizes() uint32 { return h.NumberOfRvaAndSizes }
func (h *OptionalHeader64) size() int64                 { return optionalHeader64Size }
func (h *OptionalHeader64) pack(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// packRecord serializes any fixed-layout record little-endian into buf.
func packRecord(buf *bytes.Buffer, v interface{}) {
	// bytes.Buffer never fails and every record type here is
	// fixed-layout, so an error means a programming mistake.
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// alignUp aligns a value up to the nearest multiple of alignment.
func alignUp(value, alignment int64) int64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

// alignUp32 is alignUp over the 32-bit virtual-address space.
func alignUp32(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}
