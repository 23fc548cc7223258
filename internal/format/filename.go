package format

import "fmt"

// Variant selects which segment-filename extension family applies.
type Variant int

const (
	VariantEWF     Variant = iota // classic .E01.. / EnCase / Linen
	VariantLogical                // logical-evidence .L01..
	VariantSmart                  // SMART/.s01..

	VariantEWF2     // EWF2 .Ex01..
	VariantLogical2 // EWF2 logical .Lx01..
)

// MaxSegmentNumber is the highest segment number the classic three-letter
// extension scheme can address with the 'E' lead: E01-E99 (99) + EAA-ZZZ
// (22*26*26 = 14872). The 'L' and 's' leads run out of letters at lower
// segment numbers and are not bounded separately.
const MaxSegmentNumber = 14971

// SegmentExtension computes the on-disk extension for segment number n
// (1-based) under the given format variant, per spec.md section 4.7.
func SegmentExtension(n int, variant Variant) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("format: segment number %d must be >= 1", n)
	}
	switch variant {
	case VariantEWF:
		return classicExtension(n, 'E')
	case VariantLogical:
		return classicExtension(n, 'L')
	case VariantSmart:
		return classicExtension(n, 's')
	case VariantEWF2:
		return ewf2Extension(n, 'E')
	case VariantLogical2:
		return ewf2Extension(n, 'L')
	default:
		return "", fmt.Errorf("format: unknown segment variant %d", variant)
	}
}

// classicExtension implements the .E01..E99, .EAA..EZZ, .FAA..ZZZ cycle
// (and its .L/.s analogues) used by v1 segments.
func classicExtension(n int, lead byte) (string, error) {
	if n > MaxSegmentNumber {
		return "", fmt.Errorf("format: segment number %d exceeds max %d for variant", n, MaxSegmentNumber)
	}
	if n <= 99 {
		return fmt.Sprintf(".%c%02d", lead, n), nil
	}
	n -= 100 // n=100 -> EAA
	// Two-letter body over [A-Z][A-Z], 676 slots per leading letter; the
	// leading letter itself only rolls from lead to lead+1 once EAA-EZZ
	// (not FAA-FZZ) is exhausted.
	first := int(lead-'A') + n/(26*26)
	rem := n % (26 * 26)
	second := rem / 26
	third := rem % 26
	return fmt.Sprintf(".%c%c%c", 'A'+first, 'A'+second, 'A'+third), nil
}

// ewf2Extension implements the .Ex01.. / .Lx01.. cycle used by v2
// segments: same three-letter roll, with an 'x' inserted after the lead
// letter.
func ewf2Extension(n int, lead byte) (string, error) {
	base, err := classicExtension(n, lead)
	if err != nil {
		return "", err
	}
	// base is ".<lead><rest>"; splice an 'x' right after the lead letter.
	return "." + string(lead) + "x" + base[2:], nil
}

// SegmentPath joins a base path with the computed extension for segment n.
func SegmentPath(basePath string, n int, variant Variant) (string, error) {
	ext, err := SegmentExtension(n, variant)
	if err != nil {
		return "", err
	}
	return basePath + ext, nil
}

// DeltaSegmentPath computes the .d01, .d02, ... filename for a delta
// overlay segment.
func DeltaSegmentPath(basePath string, n int) (string, error) {
	if n < 1 || n > 99 {
		return "", fmt.Errorf("format: delta segment number %d out of range", n)
	}
	return fmt.Sprintf("%s.d%02d", basePath, n), nil
}

// SplitSegmentPath separates a first-segment path such as "case.E01" or
// "case.Lx01" into its base path and the Variant implied by the
// extension, so a caller that only knows the first segment's name can
// discover the rest of the chain.
func SplitSegmentPath(path string) (base string, variant Variant, err error) {
	dot := lastDot(path)
	if dot < 0 {
		return "", 0, fmt.Errorf("format: %q has no segment extension", path)
	}
	base = path[:dot]
	ext := path[dot+1:]
	if len(ext) < 3 {
		return "", 0, fmt.Errorf("format: %q has a malformed segment extension", path)
	}
	lead := ext[0]
	switch {
	case ext[1] == 'x' || ext[1] == 'X':
		switch lead {
		case 'E', 'e':
			return base, VariantEWF2, nil
		case 'L', 'l':
			return base, VariantLogical2, nil
		}
	default:
		switch lead {
		case 'E', 'e':
			return base, VariantEWF, nil
		case 'L', 'l':
			return base, VariantLogical, nil
		case 's', 'S':
			return base, VariantSmart, nil
		}
	}
	return "", 0, fmt.Errorf("format: %q has an unrecognized segment extension", path)
}

func lastDot(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return i
		}
		if path[i] == '/' {
			break
		}
	}
	return -1
}
