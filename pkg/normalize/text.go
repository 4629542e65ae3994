package normalize

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// ChainTimeLayout is the chain's UTC timestamp format (no zone suffix).
const ChainTimeLayout = "2006-01-02T15:04:05"

// ParseTime parses a chain timestamp as UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ChainTimeLayout, strings.TrimSuffix(s, "Z"), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse chain time %q: %w", s, err)
	}
	return t, nil
}

// BlockNum extracts the height encoded in the first 8 hex chars of a block id.
func BlockNum(blockID string) (uint64, error) {
	if len(blockID) < 8 {
		return 0, errors.New("block id too short")
	}
	b, err := hex.DecodeString(blockID[:8])
	if err != nil {
		return 0, fmt.Errorf("block id %q: %w", blockID, err)
	}
	return uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3]), nil
}

// RepLog10 converts raw reputation into the 25-centered display scale.
func RepLog10(rep string) float64 {
	rep = strings.TrimSpace(rep)
	if rep == "" || rep == "0" {
		return 25
	}
	sign := 1.0
	if rep[0] == '-' {
		sign = -1
		rep = rep[1:]
	}
	lead := rep
	if len(lead) > 4 {
		lead = lead[:4]
	}
	var leading float64
	for _, c := range lead {
		if c < '0' || c > '9' {
			return 25
		}
		leading = leading*10 + float64(c-'0')
	}
	if leading <= 0 {
		return 25
	}
	log := math.Log10(leading) + 0.00000001
	out := float64(len(rep)-1) + (log - math.Trunc(log))
	out = math.Max(out-9, 0) * sign
	out = out*9 + 25
	return math.Round(out*100) / 100
}

// Trunc trims s and, when longer than maxlen runes, cuts it to maxlen-3 runes plus "...".
func Trunc(s string, maxlen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxlen {
		return s
	}
	r := []rune(s)
	return string(r[:maxlen-3]) + "..."
}

// HasNUL reports whether s contains a NUL byte, which Postgres text rejects.
func HasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}

// HasHTTPScheme reports whether url starts with http:// or https://.
func HasHTTPScheme(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// SafeImgURL returns url trimmed if it is an http(s) url shorter than maxSize, else "".
func SafeImgURL(url string, maxSize int) string {
	url = strings.TrimSpace(url)
	if url != "" && len(url) < maxSize && strings.HasPrefix(url, "http") {
		return url
	}
	return ""
}
