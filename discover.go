package ewf

import (
	"os"

	"github.com/go-ewf/ewf/internal/format"
)

// discoverSegmentChain expands a first-segment path into the full ordered
// chain of primary segment files on disk, per spec.md section 3's
// invariant that segment N existing implies segments 1..N-1 exist.
func discoverSegmentChain(firstSegmentPath string) ([]string, error) {
	base, variant, err := format.SplitSegmentPath(firstSegmentPath)
	if err != nil {
		return nil, err
	}
	var paths []string
	for n := 1; ; n++ {
		path, err := format.SegmentPath(base, n, variant)
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(path); statErr != nil {
			if n == 1 {
				return nil, statErr
			}
			break
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// discoverDeltaChain expands the .d01, .d02, ... delta overlay chain
// beside a primary image, if one exists. A missing delta chain is not an
// error: most images are never written to after acquisition.
func discoverDeltaChain(firstSegmentPath string) ([]string, error) {
	base, _, err := format.SplitSegmentPath(firstSegmentPath)
	if err != nil {
		return nil, err
	}
	var paths []string
	for n := 1; n <= 99; n++ {
		path, err := format.DeltaSegmentPath(base, n)
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(path); statErr != nil {
			break
		}
		paths = append(paths, path)
	}
	return paths, nil
}
