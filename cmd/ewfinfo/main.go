// Command ewfinfo prints the acquisition metadata, volume geometry, and
// hashes of one or more EWF images, and can diff two images' metadata
// against each other (ewftools/ewfoutput.c's "-d diff" option).
package main

import (
	"flag"
	"fmt"
	"os"

	ewf "github.com/go-ewf/ewf"
	"github.com/go-ewf/ewf/internal/cliutil"
	"github.com/go-ewf/ewf/internal/format"
)

const usage = `ewfinfo [-A codepage] [-d diff] [-e|-i|-m] [-v] IMAGE...
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fset := flag.NewFlagSet("ewfinfo", flag.ContinueOnError)
	fset.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	_ = fset.String("A", "ascii", "header codepage (accepted for compatibility and not applied: header is read as ASCII, header2 as UTF-16LE, xheader as UTF-8)")
	diffTarget := fset.String("d", "", "compare this image's metadata against IMAGE and report differing fields")
	examinerOnly := fset.Bool("e", false, "print only examiner-related fields")
	infoOnly := fset.Bool("i", false, "print only acquisition info fields")
	mediaOnly := fset.Bool("m", false, "print only media/volume fields")
	verbose := fset.Bool("v", false, "also list each acquisition error range")
	if err := fset.Parse(args); err != nil {
		return 1
	}
	if fset.NArg() == 0 {
		fset.Usage()
		return 1
	}

	if *diffTarget != "" {
		if fset.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "ewfinfo: -d diff takes exactly one IMAGE argument to compare against")
			return 1
		}
		return diff(fset.Arg(0), *diffTarget)
	}

	for _, path := range fset.Args() {
		if err := printInfo(path, *examinerOnly, *infoOnly, *mediaOnly, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "ewfinfo: %s: %v\n", path, err)
			if ewf.IsCode(err, ewf.ErrCodeIO) {
				return 2
			}
			return 3
		}
	}
	return 0
}

func printInfo(path string, examinerOnly, infoOnly, mediaOnly, verbose bool) error {
	img, err := ewf.Open(path)
	if err != nil {
		return err
	}
	defer img.Close()

	showAll := !examinerOnly && !infoOnly && !mediaOnly
	fmt.Printf("%s\n", path)

	if showAll || infoOnly {
		fmt.Printf("  Acquisition size: %s (%d chunks of %s)\n",
			cliutil.FormatBytes(img.Size()), img.ChunkCount(), cliutil.FormatBytes(int64(img.ChunkSize())))
	}
	if showAll || examinerOnly {
		printHeaderFields(img)
	}
	if showAll || mediaOnly {
		printVolumeFields(img.Volume())
	}
	if showAll {
		if md5, ok := img.Hash("MD5"); ok {
			fmt.Printf("  MD5 hash: %x\n", md5)
		}
		if sha1, ok := img.Hash("SHA1"); ok {
			fmt.Printf("  SHA1 hash: %x\n", sha1)
		}
		if ranges := img.ErrorRanges(); len(ranges) > 0 {
			fmt.Printf("  Acquisition read errors: %d range(s)\n", len(ranges))
			if verbose {
				for _, r := range ranges {
					fmt.Printf("    sector %d, count %d\n", r.FirstSector, r.SectorCount)
				}
			}
		}
	}
	return nil
}

func printHeaderFields(img *ewf.Image) {
	labels := []struct{ key, label string }{
		{format.HeaderKeyCaseNumber, "Case number"},
		{format.HeaderKeyDescription, "Description"},
		{format.HeaderKeyEvidenceNumber, "Evidence number"},
		{format.HeaderKeyExaminer, "Examiner"},
		{format.HeaderKeyNotes, "Notes"},
		{format.HeaderKeyAcquiryDate, "Acquisition date"},
		{format.HeaderKeyModel, "Model"},
		{format.HeaderKeySerialNumber, "Serial number"},
		{format.HeaderKeyBusType, "Bus type"},
	}
	for _, l := range labels {
		if v, ok := img.HeaderValue(l.key); ok && v != "" {
			fmt.Printf("  %s: %s\n", l.label, v)
		}
	}
}

func printVolumeFields(v format.Volume) {
	fmt.Printf("  Media type: %s\n", mediaTypeName(v.MediaType))
	fmt.Printf("  Bytes per sector: %d\n", v.BytesPerSector)
	fmt.Printf("  Sectors per chunk: %d\n", v.SectorsPerChunk)
	if v.SectorCount > 0 {
		fmt.Printf("  Sector count: %d\n", v.SectorCount)
	}
}

func mediaTypeName(t uint8) string {
	switch t {
	case format.MediaTypeRemovable:
		return "removable"
	case format.MediaTypeFixed:
		return "fixed"
	case format.MediaTypeOptical:
		return "optical"
	case format.MediaTypeLogical:
		return "logical"
	case format.MediaTypeRAM:
		return "RAM"
	default:
		return fmt.Sprintf("unknown(0x%02x)", t)
	}
}

func diff(pathA, pathB string) int {
	a, err := ewf.Open(pathA)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfinfo: %s: %v\n", pathA, err)
		return 2
	}
	defer a.Close()
	b, err := ewf.Open(pathB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfinfo: %s: %v\n", pathB, err)
		return 2
	}
	defer b.Close()

	keys := map[string]bool{}
	for _, k := range a.HeaderKeys() {
		keys[k] = true
	}
	for _, k := range b.HeaderKeys() {
		keys[k] = true
	}

	differing := false
	for key := range keys {
		av, _ := a.HeaderValue(key)
		bv, _ := b.HeaderValue(key)
		if av != bv {
			differing = true
			fmt.Printf("%s: %q != %q\n", key, av, bv)
		}
	}
	if a.Size() != b.Size() {
		differing = true
		fmt.Printf("size: %d != %d\n", a.Size(), b.Size())
	}
	if !differing {
		fmt.Println("no metadata differences")
	}
	return 0
}
