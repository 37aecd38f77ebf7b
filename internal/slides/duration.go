package slides

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultDurationSeconds is returned for hints with no numeric token.
const DefaultDurationSeconds = 30

var firstInteger = regexp.MustCompile(`\d+`)

// ParseDuration converts a duration hint into whole seconds. The first integer
// token is taken; a "min" substring (any case) multiplies it by 60, anything
// else is read as seconds. Input without a number yields DefaultDurationSeconds.
func ParseDuration(s string) int {
	tok := firstInteger.FindString(s)
	if tok == "" {
		return DefaultDurationSeconds
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		// only reachable on overflow
		return DefaultDurationSeconds
	}
	if strings.Contains(strings.ToLower(s), "min") {
		return n * 60
	}
	return n
}
