package pe

import "fmt"

// Summary is a read-only digest of a parsed image for reporting.
type Summary struct {
	Architecture     string
	Subsystem        string
	EntryPoint       uint64
	ImageBase        uint64
	FileAlignment    uint32
	SectionAlignment uint32
	CheckSum         uint32
	Signed           bool
	TrailerSize      int64
	Sections         []SectionSummary
	Directories      []DirectorySummary
}

// SectionSummary describes one section of the image.
type SectionSummary struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
	RawSize        uint32
	Permissions    string
	Entropy        float64
}

// DirectorySummary describes one present data directory.
type DirectorySummary struct {
	Index          int
	Name           string
	VirtualAddress uint32
	Size           uint32
}

// Summarize extracts a Summary from the image.
func (im *Image) Summarize() *Summary {
	s := &Summary{
		Architecture:     machineName(im.fileHeader.Machine),
		FileAlignment:    im.opt.fileAlignment(),
		SectionAlignment: im.opt.sectionAlignment(),
		CheckSum:         im.opt.checkSum(),
		Signed:           im.HasSignature(),
		TrailerSize:      im.trailer.Len(),
	}

	switch opt := im.opt.(type) {
	case *OptionalHeader32:
		s.EntryPoint = uint64(opt.AddressOfEntryPoint)
		s.ImageBase = uint64(opt.ImageBase)
		s.Subsystem = subsystemName(opt.Subsystem)
	case *OptionalHeader64:
		s.EntryPoint = uint64(opt.AddressOfEntryPoint)
		s.ImageBase = opt.ImageBase
		s.Subsystem = subsystemName(opt.Subsystem)
	}

	for _, sec := range im.sections {
		h := &sec.Header
		entropy, err := sectionEntropy(sec.Data)
		if err != nil {
			entropy = 0.0
		}
		s.Sections = append(s.Sections, SectionSummary{
			Name:           h.NameString(),
			VirtualAddress: h.VirtualAddress,
			VirtualSize:    h.VirtualSize,
			RawSize:        h.SizeOfRawData,
			Permissions:    sectionPermissions(h.Characteristics),
			Entropy:        entropy,
		})
	}

	for idx := range im.dirs {
		r, ok := im.FindDirectory(idx)
		if !ok {
			continue
		}
		s.Directories = append(s.Directories, DirectorySummary{
			Index:          idx,
			Name:           DirectoryName(idx),
			VirtualAddress: r.Start,
			Size:           r.Len(),
		})
	}
	return s
}

func machineName(machine uint16) string {
	switch machine {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x64"
	case MachineARM:
		return "ARM"
	case MachineARM64:
		return "ARM64"
	default:
		return fmt.Sprintf("unknown (0x%X)", machine)
	}
}

func subsystemName(subsystem uint16) string {
	switch subsystem {
	case 1:
		return "Native"
	case 2:
		return "Windows GUI"
	case 3:
		return "Windows console"
	default:
		return fmt.Sprintf("unknown (0x%X)", subsystem)
	}
}

func sectionPermissions(c uint32) string {
	perms := [3]byte{'-', '-', '-'}
	if c&scnMemRead != 0 {
		perms[0] = 'R'
	}
	if c&scnMemWrite != 0 {
		perms[1] = 'W'
	}
	if c&scnMemExecute != 0 {
		perms[2] = 'X'
	}
	return string(perms[:])
}
