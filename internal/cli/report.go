// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/pecarve/pecarve/internal/pe"
)

// Reporter formats and prints a PE container summary.
type Reporter struct {
	summary *pe.Summary
}

// NewReporter creates a new reporter for the given summary.
func NewReporter(s *pe.Summary) *Reporter {
	return &Reporter{summary: s}
}

// Print outputs the complete report.
func (r *Reporter) Print() {
	r.printBasicInfo()
	r.printSections()
	r.printDirectories()
}

func (r *Reporter) printBasicInfo() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Println("\n[Image]")

	fmt.Printf("  %-18s: %s\n", "Architecture", r.summary.Architecture)
	fmt.Printf("  %-18s: %s\n", "Subsystem", r.summary.Subsystem)
	fmt.Printf("  %-18s: 0x%X\n", "Entry point", r.summary.EntryPoint)
	fmt.Printf("  %-18s: 0x%X\n", "Image base", r.summary.ImageBase)
	fmt.Printf("  %-18s: 0x%X / 0x%X\n", "File/section align",
		r.summary.FileAlignment, r.summary.SectionAlignment)

	fmt.Printf("  %-18s: ", "Checksum")
	if r.summary.CheckSum == 0 {
		color.New(color.FgHiBlack).Print("not set")
	} else {
		// Parse already verified a nonzero checksum.
		color.New(color.FgGreen).Printf("valid (0x%08X)", r.summary.CheckSum)
	}
	fmt.Println()

	fmt.Printf("  %-18s: ", "Signature")
	if r.summary.Signed {
		color.New(color.FgGreen).Print("present")
	} else {
		color.New(color.FgHiBlack).Print("absent")
	}
	fmt.Println()

	if r.summary.TrailerSize > 0 {
		fmt.Printf("  %-18s: %d bytes\n", "Trailer", r.summary.TrailerSize)
	}
}

func (r *Reporter) printSections() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Printf("\n[Sections] (%d)\n", len(r.summary.Sections))

	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("  %-10s %-12s %-12s %-12s %-6s %s\n",
		"Name", "VirtAddr", "VirtSize", "RawSize", "Perms", "Entropy")
	fmt.Println(strings.Repeat("-", 72))

	for _, sec := range r.summary.Sections {
		permColor := color.New(color.FgWhite)
		if sec.Permissions == "RWX" {
			permColor = color.New(color.FgRed, color.Bold)
		} else if strings.Contains(sec.Permissions, "X") {
			permColor = color.New(color.FgYellow)
		}

		fmt.Printf("  %-10s 0x%08X   0x%08X   0x%08X   ",
			sec.Name, sec.VirtualAddress, sec.VirtualSize, sec.RawSize)
		permColor.Printf("%-6s", sec.Permissions)
		fmt.Printf(" %.2f\n", sec.Entropy)
	}
	fmt.Println(strings.Repeat("-", 72))
}

func (r *Reporter) printDirectories() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Printf("\n[Data directories] (%d present)\n", len(r.summary.Directories))

	if len(r.summary.Directories) == 0 {
		fmt.Println("  none")
		return
	}
	for _, dir := range r.summary.Directories {
		name := dir.Name
		if name == "" {
			name = fmt.Sprintf("#%d", dir.Index)
		}
		fmt.Printf("  %2d. %-14s 0x%08X  %d bytes\n",
			dir.Index, name, dir.VirtualAddress, dir.Size)
	}
	fmt.Println()
}
