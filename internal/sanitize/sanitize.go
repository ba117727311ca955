// Package sanitize strips markup from user-submitted chat text. The policy
// is deny-all: no tag survives, not even formatting tags, and script element
// bodies are discarded along with the tags themselves.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Clean removes every HTML tag from s and trims surrounding whitespace from
// the result. Plain text passes through unchanged; cleaning already-clean
// text is a no-op.
func Clean(s string) string {
	return strings.TrimSpace(policy.Sanitize(s))
}
