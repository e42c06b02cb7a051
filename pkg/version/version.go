// Package version canonicalizes registry version strings into join keys.
//
// Two sources may spell the same release differently ("1.2.0+sha.abc" in the
// registry index, "1.2.0" in the search API). [Normalize] produces the key
// both sides are matched on. Segment count is significant: "1.2" and "1.2.0"
// are different keys because a zero build number is still a present segment.
package version

import (
	"strconv"
	"strings"
)

// Normalize returns the normalized key for raw.
//
// Build metadata after '+' is dropped and the result is trimmed and
// lowercased. The numeric core (everything before the first '-') is parsed as
// two to four dot-separated non-negative integers and re-emitted with only the
// segments that were present; leading zeros inside a segment are folded
// ("01.2" becomes "1.2"). A prerelease label is re-appended as is. When the
// core does not parse, the stripped and lowercased string is returned.
//
// Normalize is idempotent: Normalize(Normalize(v)) == Normalize(v).
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	base, _, _ := strings.Cut(raw, "+")
	base = strings.ToLower(strings.TrimSpace(base))

	core, pre, hasPre := strings.Cut(base, "-")
	segments, ok := parseCore(core)
	if !ok {
		return base
	}

	key := strings.Join(segments, ".")
	if hasPre && pre != "" {
		key += "-" + pre
	}
	return key
}

// IsPrerelease reports whether raw carries a prerelease label.
func IsPrerelease(raw string) bool {
	base, _, _ := strings.Cut(raw, "+")
	_, pre, ok := strings.Cut(strings.TrimSpace(base), "-")
	return ok && pre != ""
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// parseCore splits a numeric core into its canonical decimal segments.
// It accepts 2 to 4 components, each a non-negative 32-bit integer.
func parseCore(core string) ([]string, bool) {
	parts := strings.Split(core, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, false
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || !allDigits(p) {
			return nil, false
		}
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, false
		}
		out = append(out, strconv.FormatInt(n, 10))
	}
	return out, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
