// Package presence checks whether an artist's public profile page
// links to an Instagram account. The page renders the link client-side
// behind an "about" modal, so checks run through a real browser.
package presence

import (
	"regexp"
	"time"
)

// Outcome classifies one presence check.
type Outcome string

const (
	// OutcomeFound means an Instagram link was located on the profile.
	OutcomeFound Outcome = "found"
	// OutcomeNotFound means the profile rendered but carries no link.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeRateLimited means the check was skipped to stay under the
	// per-batch visit cap. Nothing was learned about the artist.
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeUnreachable means the check was attempted but failed.
	// Nothing was learned about the artist.
	OutcomeUnreachable Outcome = "unreachable"
)

// Conclusive reports whether the outcome says something about the
// artist rather than about the check itself.
func (o Outcome) Conclusive() bool {
	return o == OutcomeFound || o == OutcomeNotFound
}

// Result is the outcome of one presence check.
type Result struct {
	Outcome   Outcome   `json:"outcome"`
	Handle    string    `json:"handle,omitempty"`
	URL       string    `json:"url,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

var handlePattern = regexp.MustCompile(`instagram\.com/([^/?]+)`)

// ParseHandle extracts an "@handle" from an Instagram profile URL.
func ParseHandle(profileURL string) (string, bool) {
	m := handlePattern.FindStringSubmatch(profileURL)
	if m == nil || m[1] == "" {
		return "", false
	}
	return "@" + m[1], true
}
