// Package analysis orchestrates one playlist run: enrich every primary
// artist, evaluate the eligibility rules, and report who stays.
package analysis

import (
	"github.com/sydlexius/clearwater/internal/eligibility"
)

// Phase names one stage of a run.
type Phase string

const (
	PhaseFetchingArtists  Phase = "fetching_artists"
	PhaseScrapingPresence Phase = "scraping_presence"
	PhaseEvaluating       Phase = "evaluating"
)

// ProgressEvent is one step of a run. Events are stream-only and never
// stored.
type ProgressEvent struct {
	Phase   Phase  `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Artist  string `json:"artist,omitempty"`
}

// Sink receives progress events during a run.
type Sink func(ProgressEvent)

// TrackRef is one playlist track belonging to an artist aggregate.
type TrackRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	Album      string `json:"album"`
	AlbumImage string `json:"albumImage,omitempty"`
}

// SpotifyData is the enrichment snapshot attached to an artist.
type SpotifyData struct {
	Popularity    int      `json:"popularity"`
	LatestRelease string   `json:"latestRelease,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Followers     int      `json:"followers"`
	URL           string   `json:"url,omitempty"`
}

// Instagram is a verified presence attachment.
type Instagram struct {
	Handle string `json:"handle"`
	URL    string `json:"url"`
}

// ArtistResult is the full verdict for one primary artist, with every
// track the verdict applies to.
type ArtistResult struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Tracks        []TrackRef             `json:"tracks"`
	SpotifyData   *SpotifyData           `json:"spotifyData,omitempty"`
	Instagram     *Instagram             `json:"instagram,omitempty"`
	Status        eligibility.Status     `json:"status"`
	FailureReason string                 `json:"failureReason,omitempty"`
	Details       string                 `json:"details,omitempty"`
	Confidence    eligibility.Confidence `json:"confidence"`
}

// Report is the final output of one analysis run.
type Report struct {
	RunID        string         `json:"runId"`
	TotalTracks  int            `json:"totalTracks"`
	TotalArtists int            `json:"totalArtists"`
	Kept         []ArtistResult `json:"kept"`
	Removed      []ArtistResult `json:"removed"`
	Unchecked    []ArtistResult `json:"unchecked"`
	Summary      Summary        `json:"summary"`
}

// Summary counts the verdicts. TracksToRemove is the count a clean
// would delete, not a promise that the clean ran.
type Summary struct {
	KeptCount      int `json:"keptCount"`
	RemovedCount   int `json:"removedCount"`
	UncheckedCount int `json:"uncheckedCount"`
	TracksToRemove int `json:"tracksToRemove"`
}
