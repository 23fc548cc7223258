// Package cliutil holds the small pieces the cmd/ewf* binaries share:
// human-readable byte-size formatting/parsing (ported from libewf's
// ewfbyte_size_string.c, see SPEC_FULL.md section 4.2) and TTY-aware
// progress rendering.
package cliutil

import (
	"fmt"
	"strconv"
	"strings"
)

var binaryUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes renders n the way ewfinfo/ewfverify report progress and
// segment sizes: base-1024 units, one decimal place once above 1 KiB.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	f := float64(n)
	unit := 0
	for f >= 1024 && unit < len(binaryUnits)-1 {
		f /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", f, binaryUnits[unit])
}

// ParseBytes parses a human-readable byte size like "1.4GiB", "512MB",
// "4096" (bytes) into an exact byte count. Accepts both binary (KiB/MiB/
// GiB/TiB) and decimal (KB/MB/GB/TB) unit suffixes, case-insensitively.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cliutil: empty byte size")
	}
	i := 0
	for i < len(s) && (s[i] == '.' || s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	numPart, unitPart := s[:i], strings.TrimSpace(s[i:])
	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("cliutil: invalid byte size %q: %w", s, err)
	}
	mult, err := unitMultiplier(unitPart)
	if err != nil {
		return 0, err
	}
	return int64(value * mult), nil
}

func unitMultiplier(unit string) (float64, error) {
	switch strings.ToUpper(unit) {
	case "", "B":
		return 1, nil
	case "KB":
		return 1000, nil
	case "KIB", "K":
		return 1024, nil
	case "MB":
		return 1000 * 1000, nil
	case "MIB", "M":
		return 1024 * 1024, nil
	case "GB":
		return 1000 * 1000 * 1000, nil
	case "GIB", "G":
		return 1024 * 1024 * 1024, nil
	case "TB":
		return 1000 * 1000 * 1000 * 1000, nil
	case "TIB", "T":
		return 1024 * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("cliutil: unknown byte size unit %q", unit)
	}
}
