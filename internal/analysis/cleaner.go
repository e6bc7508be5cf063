package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/clearwater/internal/event"
)

// TrackRemover is the slice of the Spotify client the cleaner needs.
type TrackRemover interface {
	RemoveTracks(ctx context.Context, playlistID string, uris []string) (int, error)
}

// CleanResult reports one mutation pass.
type CleanResult struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
	Artists int  `json:"artists,omitempty"`
}

// Cleaner applies a removal verdict to the live playlist.
type Cleaner struct {
	spotify TrackRemover
	bus     *event.Bus
	logger  *slog.Logger
	now     func() time.Time
}

func NewCleaner(sp TrackRemover, bus *event.Bus, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		spotify: sp,
		bus:     bus,
		logger:  logger.With(slog.String("component", "cleaner")),
		now:     time.Now,
	}
}

// RemoveArtists deletes every track belonging to the given artists.
// The artist list is the caller's reviewed removal set; the cleaner
// never re-evaluates it.
func (c *Cleaner) RemoveArtists(ctx context.Context, playlistID string, artists []ArtistResult) (*CleanResult, error) {
	var uris []string
	for _, artist := range artists {
		for _, t := range artist.Tracks {
			if t.URI != "" {
				uris = append(uris, t.URI)
			}
		}
	}
	if len(uris) == 0 {
		return &CleanResult{Success: true, Removed: 0}, nil
	}

	removed, err := c.spotify.RemoveTracks(ctx, playlistID, uris)
	if err != nil {
		return nil, fmt.Errorf("cleaning playlist %s: %w", playlistID, err)
	}

	c.logger.Info("playlist cleaned",
		slog.String("playlist", playlistID),
		slog.Int("tracks", removed),
		slog.Int("artists", len(artists)))

	if c.bus != nil {
		c.bus.Publish(event.Event{
			Type:      event.PlaylistCleaned,
			Timestamp: c.now(),
			Data: map[string]any{
				"playlistId": playlistID,
				"removed":    removed,
				"artists":    len(artists),
			},
		})
	}

	return &CleanResult{Success: true, Removed: removed, Artists: len(artists)}, nil
}
