package schedule

import (
	"regexp"
	"strconv"
	"strings"
)

// The source cell text is free-form: ranges may be separated by commas,
// line breaks, or nothing at all (when the site strips its own <br> tags the
// ranges run together, e.g. "08:00 - 12:0020:00 - 23:59").

var (
	reRange = regexp.MustCompile(`^\d{1,2}:\d{2} - \d{1,2}:\d{2}$`)
	reDash  = regexp.MustCompile(`\s*-\s*`)
	reSpace = regexp.MustCompile(`\s+`)

	// A run-together boundary: a complete HH:MM token immediately followed
	// by the start of another time token. Every valid token is 4-5 chars of
	// digits and a colon, so this split has no false positives.
	reGlued = regexp.MustCompile(`(\d{2}:\d{2})(\d{1,2}:)`)
)

// ParseHours splits a raw cell text into normalized "HH:MM - HH:MM" ranges.
// Malformed fragments are dropped silently; empty or whitespace-only input
// yields an empty list, never an error.
func ParseHours(text string) []string {
	hours := []string{}
	if strings.TrimSpace(text) == "" {
		return hours
	}

	normalized := strings.NewReplacer("\r", "", "\n", "|", ",", "|").Replace(text)

	// Re-apply until stable so three or more glued ranges all split.
	for {
		next := reGlued.ReplaceAllString(normalized, "$1|$2")
		if next == normalized {
			break
		}
		normalized = next
	}

	for _, part := range strings.Split(normalized, "|") {
		part = strings.TrimSpace(part)
		if part == "" || !strings.Contains(part, ":") {
			continue
		}
		if r, ok := NormalizeRange(part); ok {
			hours = append(hours, r)
		}
	}
	return hours
}

// NormalizeRange canonicalizes a single range token to "H[H]:MM - H[H]:MM".
// Returns ok=false for anything that does not look like a time range after
// cleanup; callers drop those fragments.
func NormalizeRange(token string) (string, bool) {
	cleaned := reDash.ReplaceAllString(strings.TrimSpace(token), " - ")
	cleaned = reSpace.ReplaceAllString(cleaned, " ")
	if !reRange.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

// RangeStart returns the start of a normalized range as minutes from
// midnight. ok is false when the token cannot be parsed.
func RangeStart(r string) (int, bool) {
	parts := reDash.Split(strings.TrimSpace(r), 2)
	if len(parts) < 1 {
		return 0, false
	}
	return clockMinutes(parts[0])
}

// RangeEnd returns the end of a normalized range as minutes from midnight.
// An end of "00:00" yields 0; callers treat it as midnight of the next day.
func RangeEnd(r string) (int, bool) {
	parts := reDash.Split(strings.TrimSpace(r), 2)
	if len(parts) < 2 {
		return 0, false
	}
	return clockMinutes(parts[1])
}

func clockMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, false
	}
	return h*60 + m, true
}
