package cache

import (
	"regexp"
	"strings"
)

// Failure signatures that upstream handlers embed in otherwise-plain
// answer text. An answer matching any of these must never be cached as
// a success.
var (
	errorCodePattern = regexp.MustCompile(`(?i)\berror code:\s*\d+`)
	httpCodePattern  = regexp.MustCompile(`\b(402|404)\b`)
)

// ErrorSignature reports whether an answer looks like a failed
// execution rather than a real result.
func ErrorSignature(answer string) bool {
	if strings.HasPrefix(answer, "Error") {
		return true
	}
	if errorCodePattern.MatchString(answer) {
		return true
	}
	return httpCodePattern.MatchString(answer)
}
