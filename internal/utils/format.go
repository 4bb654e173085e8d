package utils

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"time"
)

var sizeUnits = []string{"bytes", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatSize renders a byte count with a binary unit suffix. The value is
// truncated to two decimals and printed without trailing zeros.
// For example: 1536 becomes "1.5 KB", 1073741824 becomes "1 GB"
func FormatSize(b uint64) string {
	if b == 0 {
		return "0 bytes"
	}

	unit := (bits.Len64(b) - 1) / 10
	if unit == 0 {
		return fmt.Sprintf("%d bytes", b)
	}

	shift := uint(unit * 10)
	whole := b >> shift
	rem := b & (1<<shift - 1)

	// hundredths of the unit; the exabyte remainder would overflow when scaled
	var frac uint64
	if shift <= 56 {
		frac = rem * 100 >> shift
	} else {
		frac = (rem >> 10) * 100 >> (shift - 10)
	}

	switch {
	case frac == 0:
		return fmt.Sprintf("%d %s", whole, sizeUnits[unit])
	case frac%10 == 0:
		return fmt.Sprintf("%d.%d %s", whole, frac/10, sizeUnits[unit])
	default:
		return fmt.Sprintf("%d.%02d %s", whole, frac, sizeUnits[unit])
	}
}

// Number formats large numbers with commas for readability.
// For example: 1234567 becomes "1,234,567"
func Number(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result []string
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ",")
		}
		result = append(result, string(digit))
	}
	return strings.Join(result, "")
}

// Duration formats time duration in human-readable form.
// Examples:
//   - Less than 1 second: "0s"
//   - Less than 1 minute: "5.2s"
//   - Less than 1 hour: "3m5.2s"
//   - 1 hour or more: "2h15m"
func Duration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := d.Seconds() - float64(minutes*60)
		return fmt.Sprintf("%dm%.1fs", minutes, seconds)
	} else {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}

// Rate formats a transfer rate in bytes per second.
// For example: 1572864 becomes "1.5 MB/s"
func Rate(bytesPerSec float64) string {
	if bytesPerSec <= 0 || math.IsInf(bytesPerSec, 0) || math.IsNaN(bytesPerSec) {
		return "0 bytes/s"
	}
	return FormatSize(uint64(bytesPerSec)) + "/s"
}
