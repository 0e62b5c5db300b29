// Package main provides the pecarve CLI tool: a thin driver around the
// PE container model that loads a file, applies structural mutations
// and writes the rebuilt image.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/fatih/color"

	"github.com/pecarve/pecarve/internal/blob"
	"github.com/pecarve/pecarve/internal/cli"
	"github.com/pecarve/pecarve/internal/log"
	"github.com/pecarve/pecarve/internal/pe"
)

func main() {
	parser := argparse.NewParser("pecarve", "Inspect and rewrite PE container metadata")

	file := parser.String("f", "file", &argparse.Options{
		Required: true, Help: "PE file to process"})
	output := parser.String("o", "output", &argparse.Options{
		Help: "Output path (defaults to the input file when mutating)"})
	removeSig := parser.Flag("", "remove-signature", &argparse.Options{
		Help: "Remove the digital signature from the trailer"})
	removeTrailer := parser.Flag("", "remove-trailer", &argparse.Options{
		Help: "Remove the signature and all trailing bytes"})
	resizeDir := parser.String("", "resize-dir", &argparse.Options{
		Help: "Resize a data directory, INDEX:SIZE (size accepts 0x prefix)"})
	setDir := parser.String("", "set-dir", &argparse.Options{
		Help: "Replace a data directory's contents, INDEX:FILE"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{
		Help: "Enable debug logging"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(1)
	}
	if *verbose {
		log.SetLevelDebug()
	}

	mutating := *removeSig || *removeTrailer || *resizeDir != "" || *setDir != ""
	if err := run(*file, *output, mutating, *removeSig, *removeTrailer, *resizeDir, *setDir); err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(path, output string, mutating, removeSig, removeTrailer bool, resizeDir, setDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	log.Log.Debug().Str("file", path).Int("size", len(data)).Msg("loaded input")

	image, err := pe.Parse(blob.FromBytes(data))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if !mutating {
		cli.NewReporter(image.Summarize()).Print()
		return nil
	}

	if removeTrailer {
		if err := image.RemoveTrailer(); err != nil {
			return err
		}
		log.Log.Info().Msg("trailer removed")
	} else if removeSig {
		if !image.HasSignature() {
			log.Log.Warn().Msg("image has no signature")
		}
		if err := image.RemoveSignature(); err != nil {
			return err
		}
		log.Log.Info().Msg("signature removed")
	}

	if resizeDir != "" {
		idx, size, err := parseIndexValue(resizeDir)
		if err != nil {
			return err
		}
		assigned, err := image.ResizeDirectory(idx, uint32(size))
		if err != nil {
			return err
		}
		log.Log.Info().
			Str("directory", pe.DirectoryName(idx)).
			Uint32("start", assigned.Start).
			Uint32("end", assigned.End).
			Msg("directory resized")
	}

	if setDir != "" {
		idx, file, err := parseIndexFile(setDir)
		if err != nil {
			return err
		}
		contents, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := image.SetDirectory(idx, blob.FromBytes(contents)); err != nil {
			return err
		}
		log.Log.Info().
			Str("directory", pe.DirectoryName(idx)).
			Int("size", len(contents)).
			Msg("directory replaced")
	}

	out, err := image.Store()
	if err != nil {
		return err
	}

	if output == "" {
		output = path
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	written, err := out.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	log.Log.Info().Str("file", output).Int64("size", written).Msg("image written")
	return nil
}

// parseIndexValue splits "INDEX:SIZE"; the size accepts 0x prefixes.
func parseIndexValue(s string) (int, uint64, error) {
	idxStr, valStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected INDEX:SIZE, got %q", s)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad directory index %q", idxStr)
	}
	val, err := strconv.ParseUint(valStr, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad size %q", valStr)
	}
	return idx, val, nil
}

// parseIndexFile splits "INDEX:FILE".
func parseIndexFile(s string) (int, string, error) {
	idxStr, file, ok := strings.Cut(s, ":")
	if !ok {
		return 0, "", fmt.Errorf("expected INDEX:FILE, got %q", s)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return 0, "", fmt.Errorf("bad directory index %q", idxStr)
	}
	return idx, file, nil
}
