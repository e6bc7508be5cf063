package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"

	// trackPageSize is the page size for playlist listing and track paging.
	trackPageSize = 50
	// removeBatchSize is the API ceiling for one removal request.
	removeBatchSize = 100
	// defaultRetryAfter applies when a 429 carries no Retry-After header.
	defaultRetryAfter = time.Second
)

// Client talks to the Spotify Web API on behalf of the connected
// account. All calls are rate limited client-side; a server-side 429
// is honored by sleeping the advised delay once.
type Client struct {
	http    *http.Client
	auth    tokenProvider
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
	sleep   func(ctx context.Context, d time.Duration) error
}

type tokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// NewClient creates a Client with the default base URL.
func NewClient(auth *Authenticator, logger *slog.Logger) *Client {
	return NewClientWithBaseURL(auth, logger, defaultBaseURL)
}

// NewClientWithBaseURL creates a Client with a custom base URL (for testing).
func NewClientWithBaseURL(auth tokenProvider, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		auth:    auth,
		limiter: rate.NewLimiter(rate.Limit(10), 2),
		logger:  logger.With(slog.String("component", "spotify")),
		baseURL: strings.TrimRight(baseURL, "/"),
		sleep:   sleepCtx,
	}
}

// ListPlaylists returns every playlist on the connected account.
func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist
	offset := 0
	for {
		params := url.Values{
			"limit":  {strconv.Itoa(trackPageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		var page apiPlaylistPage
		if err := c.getJSON(ctx, "/me/playlists?"+params.Encode(), &page); err != nil {
			return nil, fmt.Errorf("listing playlists: %w", err)
		}
		for _, item := range page.Items {
			p := Playlist{
				ID:         item.ID,
				Name:       item.Name,
				Public:     item.Public,
				Owner:      item.Owner.DisplayName,
				TrackCount: item.Tracks.Total,
			}
			if len(item.Images) > 0 {
				p.Image = item.Images[0].URL
			}
			playlists = append(playlists, p)
		}
		if page.Next == nil || len(page.Items) == 0 {
			return playlists, nil
		}
		offset += len(page.Items)
	}
}

// ListPlaylistTracks returns every track in the playlist, paging until
// the API is exhausted. Local files and ghost entries (null tracks) are
// skipped.
func (c *Client) ListPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	var tracks []Track
	offset := 0
	for {
		params := url.Values{
			"limit":  {strconv.Itoa(trackPageSize)},
			"offset": {strconv.Itoa(offset)},
			"fields": {"items(track(id,name,uri,artists(id,name),album(name,images)))"},
		}
		path := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), params.Encode())
		var page apiPlaylistTrackPage
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("listing tracks for playlist %s: %w", playlistID, err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			t := item.Track
			if t == nil || t.ID == "" {
				continue
			}
			track := Track{
				ID:    t.ID,
				Name:  t.Name,
				URI:   t.URI,
				Album: t.Album.Name,
			}
			if len(t.Album.Images) > 0 {
				track.AlbumImage = t.Album.Images[0].URL
			}
			for _, a := range t.Artists {
				track.Artists = append(track.Artists, TrackArtist{ID: a.ID, Name: a.Name})
			}
			tracks = append(tracks, track)
		}
		if len(page.Items) < trackPageSize {
			break
		}
		offset += trackPageSize
	}

	c.logger.Debug("playlist tracks fetched",
		slog.String("playlist", playlistID),
		slog.Int("tracks", len(tracks)))

	return tracks, nil
}

// GetArtist fetches catalog metadata for one artist. A server-side 429
// yields (nil, nil) after the advised sleep so the caller can degrade
// the single artist instead of failing the run.
func (c *Client) GetArtist(ctx context.Context, artistID string) (*ArtistMetadata, error) {
	var result apiArtist
	throttled, err := c.getJSONThrottleAware(ctx, "/artists/"+url.PathEscape(artistID), &result)
	if err != nil {
		return nil, fmt.Errorf("fetching artist %s: %w", artistID, err)
	}
	if throttled {
		return nil, nil
	}

	meta := &ArtistMetadata{
		ID:         result.ID,
		Name:       result.Name,
		Popularity: result.Popularity,
		Followers:  result.Followers.Total,
		Genres:     result.Genres,
		URL:        result.ExternalURLs["spotify"],
	}
	return meta, nil
}

// GetLatestRelease returns the artist's most recent album or single, or
// nil when the artist has no releases. A sustained 429 surfaces as
// RateLimitedError; nil is reserved for a genuinely empty catalog.
func (c *Client) GetLatestRelease(ctx context.Context, artistID string) (*Release, error) {
	params := url.Values{
		"include_groups": {"album,single"},
		"limit":          {strconv.Itoa(trackPageSize)},
	}
	path := fmt.Sprintf("/artists/%s/albums?%s", url.PathEscape(artistID), params.Encode())
	var page apiAlbumPage
	throttled, err := c.getJSONThrottleAware(ctx, path, &page)
	if err != nil {
		return nil, fmt.Errorf("fetching releases for artist %s: %w", artistID, err)
	}
	if throttled {
		return nil, &RateLimitedError{RetryAfter: defaultRetryAfter}
	}
	if len(page.Items) == 0 {
		return nil, nil
	}

	var latest *Release
	for _, item := range page.Items {
		r := Release{
			ID:          item.ID,
			Name:        item.Name,
			ReleaseDate: item.ReleaseDate,
			Precision:   item.Precision,
			AlbumType:   item.AlbumType,
		}
		if latest == nil || ParseReleaseDate(r.ReleaseDate).After(ParseReleaseDate(latest.ReleaseDate)) {
			cp := r
			latest = &cp
		}
	}
	return latest, nil
}

// RemoveTracks deletes the given track URIs from the playlist in
// batches of removeBatchSize. Duplicate URIs are collapsed; removal by
// URI drops every occurrence of a track.
func (c *Client) RemoveTracks(ctx context.Context, playlistID string, uris []string) (int, error) {
	seen := make(map[string]struct{}, len(uris))
	unique := make([]string, 0, len(uris))
	for _, u := range uris {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	removed := 0
	for start := 0; start < len(unique); start += removeBatchSize {
		end := min(start+removeBatchSize, len(unique))
		batch := unique[start:end]

		type trackRef struct {
			URI string `json:"uri"`
		}
		payload := struct {
			Tracks []trackRef `json:"tracks"`
		}{Tracks: make([]trackRef, 0, len(batch))}
		for _, u := range batch {
			payload.Tracks = append(payload.Tracks, trackRef{URI: u})
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return removed, fmt.Errorf("encoding removal batch: %w", err)
		}
		path := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
		if _, _, err := c.do(ctx, http.MethodDelete, path, body); err != nil {
			return removed, fmt.Errorf("removing tracks from playlist %s: %w", playlistID, err)
		}
		removed += len(batch)

		c.logger.Debug("removal batch applied",
			slog.String("playlist", playlistID),
			slog.Int("batch", len(batch)))
	}
	return removed, nil
}

// getJSON issues a GET and decodes the body. A 429 sleeps the advised
// delay once and retries before giving up.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		body, status, err = c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		if status == http.StatusTooManyRequests {
			return &RateLimitedError{RetryAfter: defaultRetryAfter}
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// getJSONThrottleAware is getJSON for the per-artist lookups, where a
// 429 degrades to a throttled flag instead of an error.
func (c *Client) getJSONThrottleAware(ctx context.Context, path string, out any) (throttled bool, err error) {
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusTooManyRequests {
		return true, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("parsing response: %w", err)
	}
	return false, nil
}

// do executes one request. A 429 response sleeps the advised delay and
// returns with status 429 so callers choose between retry and degrade.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		delay := retryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("spotify rate limit hit",
			slog.String("path", path),
			slog.Duration("retry_after", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, 0, err
		}
		return nil, resp.StatusCode, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, resp.StatusCode, nil
	default:
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: trimBody(data)}
	}
}

// retryAfter parses a Retry-After header value in seconds.
func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// ParseReleaseDate parses a release date at day, month, or year
// precision. The zero time is returned for unparseable input.
func ParseReleaseDate(date string) time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t
		}
	}
	return time.Time{}
}

func trimBody(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
