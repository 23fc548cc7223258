// Command ewfmount mounts an EWF image read-only as a FUSE file system: a
// raw-volume image appears as a single flat file, a logical-evidence
// image appears as its captured directory tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	ewf "github.com/go-ewf/ewf"
	"github.com/go-ewf/ewf/mount"
)

const usage = `ewfmount [-f name] IMAGE MOUNTPOINT
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fset := flag.NewFlagSet("ewfmount", flag.ContinueOnError)
	fset.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	rawName := fset.String("f", "image.raw", "name of the virtual file exposing a raw-volume image's contents")
	if err := fset.Parse(args); err != nil {
		return 1
	}
	if fset.NArg() != 2 {
		fset.Usage()
		return 1
	}
	imagePath, mountpoint := fset.Arg(0), fset.Arg(1)

	img, err := ewf.Open(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfmount: %v\n", err)
		if ewf.IsCode(err, ewf.ErrCodeCorruptSection) || ewf.IsCode(err, ewf.ErrCodeCorruptTable) {
			return 3
		}
		return 2
	}
	defer img.Close()

	name := *rawName
	if img.Tree() == nil && name == "image.raw" {
		name = filepath.Base(imagePath) + ".raw"
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	join, err := mount.Mount(ctx, img, mountpoint, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ewfmount: %v\n", err)
		return 2
	}
	fmt.Printf("mounted %s at %s\n", imagePath, mountpoint)
	if err := join(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ewfmount: %v\n", err)
		return 2
	}
	return 0
}
