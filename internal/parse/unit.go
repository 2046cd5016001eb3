package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	unitPrefixRe = regexp.MustCompile(`(?i)^(?:villa|unit|flat|apt|apartment|house|no)\b\.?\s*`)
	unitSepRe    = regexp.MustCompile(`[\s\-/]+`)
	unitTokenRe  = regexp.MustCompile(`^[0-9A-Z]+$`)
	digitsRe     = regexp.MustCompile(`^[0-9]+$`)
	letterRe     = regexp.MustCompile(`^[A-Z]$`)
)

// UnitNumber normalizes a free-form unit label so that guard lookups and
// resident records agree: "Villa 12a", " 12A ", "#12-a" all become "12A"
// and "b / 4" becomes "B-4".
func UnitNumber(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "#", " ")
	s = strings.TrimSpace(unitPrefixRe.ReplaceAllString(s, ""))
	s = strings.ToUpper(s)
	if s == "" {
		return "", fmt.Errorf("empty unit number: %q", raw)
	}

	var parts []string
	for _, tok := range unitSepRe.Split(s, -1) {
		if tok == "" {
			continue
		}
		if !unitTokenRe.MatchString(tok) {
			return "", fmt.Errorf("invalid unit number: %q", raw)
		}
		// a lone letter after a number is a suffix, not a new segment
		if n := len(parts); n > 0 && letterRe.MatchString(tok) && digitsRe.MatchString(parts[n-1]) {
			parts[n-1] += tok
			continue
		}
		parts = append(parts, tok)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty unit number: %q", raw)
	}
	return strings.Join(parts, "-"), nil
}
