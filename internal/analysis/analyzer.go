package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/clearwater/internal/eligibility"
	"github.com/sydlexius/clearwater/internal/event"
	"github.com/sydlexius/clearwater/internal/presence"
	"github.com/sydlexius/clearwater/internal/spotify"
)

// MetadataClient is the slice of the Spotify client the analyzer needs.
type MetadataClient interface {
	ListPlaylistTracks(ctx context.Context, playlistID string) ([]spotify.Track, error)
	GetArtist(ctx context.Context, artistID string) (*spotify.ArtistMetadata, error)
	GetLatestRelease(ctx context.Context, artistID string) (*spotify.Release, error)
}

// PresenceChecker resolves Instagram presence for a batch of artists.
type PresenceChecker interface {
	CheckBatch(ctx context.Context, artistIDs []string, progress presence.Progress) map[string]presence.Result
}

// CRMDirectory lists artist names already under outreach.
type CRMDirectory interface {
	ArtistNames(ctx context.Context) ([]string, error)
}

// Analyzer runs the three-phase enrichment pipeline over a playlist.
type Analyzer struct {
	spotify  MetadataClient
	presence PresenceChecker
	crm      CRMDirectory
	bus      *event.Bus
	logger   *slog.Logger
	now      func() time.Time
}

func NewAnalyzer(sp MetadataClient, pr PresenceChecker, crm CRMDirectory, bus *event.Bus, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		spotify:  sp,
		presence: pr,
		crm:      crm,
		bus:      bus,
		logger:   logger.With(slog.String("component", "analyzer")),
		now:      time.Now,
	}
}

// aggregate collects one artist's enrichment state during a run.
type aggregate struct {
	id        string
	name      string
	tracks    []TrackRef
	dataError bool
	metadata  *spotify.ArtistMetadata
	latest    *spotify.Release
}

// Analyze enriches and evaluates every primary artist on the playlist.
// The only fatal failures are track listing and authentication; every
// per-artist failure degrades into that artist's verdict instead.
func (a *Analyzer) Analyze(ctx context.Context, playlistID string, filters eligibility.Filters, sink Sink) (*Report, error) {
	emit := func(e ProgressEvent) {
		if sink != nil {
			sink(e)
		}
	}

	tracks, err := a.spotify.ListPlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("analyzing playlist %s: %w", playlistID, err)
	}

	crmNames := a.loadCRMNames(ctx, filters)

	// group tracks under their primary artist, first-seen order
	var order []string
	byArtist := make(map[string]*aggregate)
	for _, t := range tracks {
		primary := t.PrimaryArtist()
		if primary.ID == "" {
			continue
		}
		agg, ok := byArtist[primary.ID]
		if !ok {
			agg = &aggregate{id: primary.ID, name: primary.Name}
			byArtist[primary.ID] = agg
			order = append(order, primary.ID)
		}
		agg.tracks = append(agg.tracks, TrackRef{
			ID:         t.ID,
			Name:       t.Name,
			URI:        t.URI,
			Album:      t.Album,
			AlbumImage: t.AlbumImage,
		})
	}
	total := len(order)

	emit(ProgressEvent{Phase: PhaseFetchingArtists, Current: 0, Total: total})
	for i, id := range order {
		agg := byArtist[id]
		a.enrich(ctx, agg)
		emit(ProgressEvent{Phase: PhaseFetchingArtists, Current: i + 1, Total: total, Artist: agg.name})
	}

	emit(ProgressEvent{Phase: PhaseScrapingPresence, Current: 0, Total: total})
	presenceResults := a.presence.CheckBatch(ctx, order, func(done, scrapeTotal int, artistID string, r presence.Result) {
		name := ""
		if agg, ok := byArtist[artistID]; ok {
			name = agg.name
		}
		emit(ProgressEvent{Phase: PhaseScrapingPresence, Current: done, Total: scrapeTotal, Artist: name})
	})

	emit(ProgressEvent{Phase: PhaseEvaluating, Current: 0, Total: total})
	report := &Report{
		RunID:       uuid.NewString(),
		TotalTracks: len(tracks),
	}
	for i, id := range order {
		agg := byArtist[id]
		result := a.evaluate(agg, presenceResults[id], filters, crmNames)

		switch result.Status {
		case eligibility.StatusKept:
			report.Kept = append(report.Kept, result)
		case eligibility.StatusRemoved:
			report.Removed = append(report.Removed, result)
			report.Summary.TracksToRemove += len(result.Tracks)
		default:
			report.Unchecked = append(report.Unchecked, result)
		}
		emit(ProgressEvent{Phase: PhaseEvaluating, Current: i + 1, Total: total})
	}

	report.TotalArtists = total
	report.Summary.KeptCount = len(report.Kept)
	report.Summary.RemovedCount = len(report.Removed)
	report.Summary.UncheckedCount = len(report.Unchecked)

	a.logger.Info("playlist analyzed",
		slog.String("playlist", playlistID),
		slog.String("run", report.RunID),
		slog.Int("tracks", report.TotalTracks),
		slog.Int("kept", report.Summary.KeptCount),
		slog.Int("removed", report.Summary.RemovedCount),
		slog.Int("unchecked", report.Summary.UncheckedCount))

	if a.bus != nil {
		a.bus.Publish(event.Event{
			Type:      event.AnalysisCompleted,
			Timestamp: a.now(),
			Data: map[string]any{
				"runId":      report.RunID,
				"playlistId": playlistID,
				"removed":    report.Summary.RemovedCount,
			},
		})
	}

	return report, nil
}

// loadCRMNames fetches the outreach roster. A CRM outage downgrades to
// an empty set so the run can continue without that rule.
func (a *Analyzer) loadCRMNames(ctx context.Context, filters eligibility.Filters) eligibility.NameSet {
	if !filters.SkipCRMArtists || a.crm == nil {
		return nil
	}
	names, err := a.crm.ArtistNames(ctx)
	if err != nil {
		a.logger.Warn("crm roster unavailable, continuing without it", slog.Any("error", err))
		return nil
	}
	a.logger.Debug("crm roster loaded", slog.Int("artists", len(names)))
	return eligibility.NewNameSet(names)
}

// enrich fetches metadata and the latest release for one artist. Both
// a failed call and a throttled nil result mark the artist as a data
// error; the verdict phase turns that into a low-confidence removal.
func (a *Analyzer) enrich(ctx context.Context, agg *aggregate) {
	meta, err := a.spotify.GetArtist(ctx, agg.id)
	if err != nil || meta == nil {
		if err != nil {
			a.logger.Warn("artist metadata fetch failed",
				slog.String("artist", agg.id),
				slog.Any("error", err))
		}
		agg.dataError = true
		return
	}
	agg.metadata = meta

	latest, err := a.spotify.GetLatestRelease(ctx, agg.id)
	if err != nil {
		a.logger.Warn("release lookup failed",
			slog.String("artist", agg.id),
			slog.Any("error", err))
		agg.dataError = true
		return
	}
	agg.latest = latest
}

func (a *Analyzer) evaluate(agg *aggregate, pres presence.Result, filters eligibility.Filters, crmNames eligibility.NameSet) ArtistResult {
	decision := eligibility.Evaluate(eligibility.Input{
		Name:          agg.name,
		DataError:     agg.dataError,
		Metadata:      agg.metadata,
		LatestRelease: agg.latest,
		Presence:      pres,
	}, filters, crmNames, a.now())

	result := ArtistResult{
		ID:            agg.id,
		Name:          agg.name,
		Tracks:        agg.tracks,
		Status:        decision.Status,
		FailureReason: decision.FailureReason,
		Details:       decision.Details,
		Confidence:    decision.Confidence,
	}
	if agg.metadata != nil {
		result.SpotifyData = &SpotifyData{
			Popularity: agg.metadata.Popularity,
			Genres:     agg.metadata.Genres,
			Followers:  agg.metadata.Followers,
			URL:        agg.metadata.URL,
		}
		if agg.latest != nil {
			result.SpotifyData.LatestRelease = agg.latest.ReleaseDate
		}
	}
	if pres.Outcome == presence.OutcomeFound {
		result.Instagram = &Instagram{Handle: pres.Handle, URL: pres.URL}
	}
	return result
}
