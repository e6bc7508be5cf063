// Package eligibility decides which artists stay on a playlist. The
// rules encode the outreach profile: small but not invisible
// popularity, a recent release, and a reachable Instagram account.
package eligibility

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sydlexius/clearwater/internal/presence"
	"github.com/sydlexius/clearwater/internal/spotify"
)

// Filters are the tunable thresholds for one analysis run.
type Filters struct {
	PopularityMin        int     `json:"popularityMin"`
	PopularityMax        int     `json:"popularityMax"`
	MaxYearsSinceRelease float64 `json:"maxYearsSinceRelease"`
	RequireInstagram     bool    `json:"requireInstagram"`
	SkipCRMArtists       bool    `json:"skipCrmArtists"`
}

// DefaultFilters returns the standard outreach profile.
func DefaultFilters() Filters {
	return Filters{
		PopularityMin:        2,
		PopularityMax:        40,
		MaxYearsSinceRelease: 2,
		RequireInstagram:     true,
		SkipCRMArtists:       true,
	}
}

// Status is the verdict for one artist.
type Status string

const (
	// StatusKept means the artist passed every rule.
	StatusKept Status = "kept"
	// StatusRemoved means a rule failed conclusively.
	StatusRemoved Status = "removed"
	// StatusUnchecked means presence could not be verified, so no
	// removal verdict is possible.
	StatusUnchecked Status = "unchecked"
)

// Confidence qualifies a verdict. Low confidence marks verdicts built
// on missing or unverifiable data.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Failure reasons, in rule order.
const (
	ReasonAlreadyInCRM    = "already_in_crm"
	ReasonDataError       = "spotify_data_error"
	ReasonPopularityLow   = "popularity_too_low"
	ReasonPopularityHigh  = "popularity_too_high"
	ReasonNoReleases      = "no_releases"
	ReasonNoRecentRelease = "no_recent_release"
	ReasonNoInstagram     = "no_instagram"
	reasonRateLimited     = "Rate limit reached, could not verify Instagram"
	reasonUnreachable     = "Could not scrape Instagram data"
)

// Decision is the full verdict for one artist.
type Decision struct {
	Status        Status     `json:"status"`
	FailureReason string     `json:"failureReason,omitempty"`
	Details       string     `json:"details,omitempty"`
	Confidence    Confidence `json:"confidence"`
}

// Input is everything known about one artist when the rules run.
type Input struct {
	Name string
	// DataError marks an artist whose catalog metadata could not be
	// fetched, whether from throttling or a hard failure.
	DataError     bool
	Metadata      *spotify.ArtistMetadata
	LatestRelease *spotify.Release
	Presence      presence.Result
}

// NameSet is a set of normalized artist names.
type NameSet map[string]struct{}

// NewNameSet builds a set from raw names, normalizing each.
func NewNameSet(names []string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[NormalizeName(n)] = struct{}{}
	}
	return s
}

func (s NameSet) Contains(name string) bool {
	_, ok := s[NormalizeName(name)]
	return ok
}

// NormalizeName folds an artist name for matching across systems.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Evaluate runs the rule ladder against one artist. Rules apply in a
// fixed order and the first failure wins. Inconclusive presence never
// removes an artist; it downgrades the verdict to unchecked instead.
func Evaluate(in Input, f Filters, crmNames NameSet, now time.Time) Decision {
	if f.SkipCRMArtists && crmNames.Contains(in.Name) {
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonAlreadyInCRM,
			Details:       "Artist already exists in CRM",
			Confidence:    ConfidenceHigh,
		}
	}

	if in.DataError || in.Metadata == nil {
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonDataError,
			Confidence:    ConfidenceLow,
		}
	}

	if d, ok := checkPopularity(in.Metadata.Popularity, f); !ok {
		return d
	}
	if d, ok := checkRelease(in.LatestRelease, f, now); !ok {
		return d
	}
	return checkPresence(in.Presence, f)
}

// checkPopularity applies the inclusive popularity window.
func checkPopularity(popularity int, f Filters) (Decision, bool) {
	if popularity < f.PopularityMin {
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonPopularityLow,
			Details:       fmt.Sprintf("Popularity %d is below minimum %d", popularity, f.PopularityMin),
			Confidence:    ConfidenceHigh,
		}, false
	}
	if popularity > f.PopularityMax {
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonPopularityHigh,
			Details:       fmt.Sprintf("Popularity %d is above maximum %d", popularity, f.PopularityMax),
			Confidence:    ConfidenceHigh,
		}, false
	}
	return Decision{}, true
}

func checkRelease(latest *spotify.Release, f Filters, now time.Time) (Decision, bool) {
	if latest == nil {
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonNoReleases,
			Details:       "No albums or singles found for this artist",
			Confidence:    ConfidenceHigh,
		}, false
	}

	years := YearsSince(spotify.ParseReleaseDate(latest.ReleaseDate), now)
	if years > f.MaxYearsSinceRelease {
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonNoRecentRelease,
			Details:       fmt.Sprintf("Last release was %v years ago (max: %v)", floorTenth(years), f.MaxYearsSinceRelease),
			Confidence:    ConfidenceHigh,
		}, false
	}
	return Decision{}, true
}

func checkPresence(r presence.Result, f Filters) Decision {
	if !f.RequireInstagram {
		return Decision{Status: StatusKept, Confidence: ConfidenceHigh}
	}

	switch r.Outcome {
	case presence.OutcomeFound:
		return Decision{Status: StatusKept, Confidence: ConfidenceHigh}
	case presence.OutcomeNotFound:
		return Decision{
			Status:        StatusRemoved,
			FailureReason: ReasonNoInstagram,
			Details:       "No Instagram handle found on Spotify page",
			Confidence:    ConfidenceHigh,
		}
	case presence.OutcomeRateLimited:
		return Decision{
			Status:        StatusUnchecked,
			FailureReason: reasonRateLimited,
			Confidence:    ConfidenceLow,
		}
	default:
		return Decision{
			Status:        StatusUnchecked,
			FailureReason: reasonUnreachable,
			Confidence:    ConfidenceLow,
		}
	}
}

// YearsSince measures elapsed years against a 365-day year. The raw
// value is what the release rule compares; display truncates it.
func YearsSince(release, now time.Time) float64 {
	if release.IsZero() {
		return math.Inf(1)
	}
	return now.Sub(release).Hours() / (24 * 365)
}

// floorTenth truncates to one decimal place for display.
func floorTenth(v float64) float64 {
	return math.Floor(v*10) / 10
}
