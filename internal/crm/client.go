// Package crm talks to the Airtable base that tracks outreach. The
// base is the system of record for which artists have already been
// contacted.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/sydlexius/clearwater/internal/config"
)

const defaultBaseURL = "https://api.airtable.com/v0"

// Client is an Airtable client scoped to one base and table.
// Requests are limited to 5/s, the documented per-base ceiling, and
// throttled or failing calls retry with exponential backoff.
type Client struct {
	http    *http.Client
	token   string
	baseURL string
	logger  *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time
	backoff func() retry.Backoff
}

// NotFoundError is returned for lookups of records that do not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("crm: record %s not found", e.ID)
}

// New creates a Client from the configured base, table, and token.
func New(cfg config.AirtableConfig, logger *slog.Logger) *Client {
	return NewWithBaseURL(cfg, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Client with a custom API root (for testing).
func NewWithBaseURL(cfg config.AirtableConfig, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		http:  &http.Client{Timeout: 15 * time.Second},
		token: cfg.AccessToken,
		baseURL: fmt.Sprintf("%s/%s/%s",
			strings.TrimRight(baseURL, "/"),
			url.PathEscape(cfg.BaseID),
			url.PathEscape(cfg.Table)),
		logger:  logger.With(slog.String("component", "crm")),
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		now:     time.Now,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
	}
}

type apiRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type apiRecordPage struct {
	Records []apiRecord `json:"records"`
	Offset  string      `json:"offset"`
}

// ListBands returns every band in the table, newest first.
func (c *Client) ListBands(ctx context.Context) ([]Band, error) {
	var bands []Band
	offset := ""
	for {
		params := url.Values{
			"sort[0][field]":     {fieldDateAdded},
			"sort[0][direction]": {"desc"},
		}
		if offset != "" {
			params.Set("offset", offset)
		}

		var page apiRecordPage
		if err := c.call(ctx, http.MethodGet, "?"+params.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("listing bands: %w", err)
		}
		for _, rec := range page.Records {
			bands = append(bands, bandFromRecord(rec))
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	c.logger.Debug("bands listed", slog.Int("count", len(bands)))
	return bands, nil
}

// ArtistNames returns the band names currently in the table.
func (c *Client) ArtistNames(ctx context.Context) ([]string, error) {
	bands, err := c.ListBands(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(bands))
	for _, b := range bands {
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	return names, nil
}

// GetBand fetches one band by record ID.
func (c *Client) GetBand(ctx context.Context, id string) (*Band, error) {
	var rec apiRecord
	if err := c.call(ctx, http.MethodGet, "/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, fmt.Errorf("fetching band %s: %w", id, err)
	}
	band := bandFromRecord(rec)
	return &band, nil
}

// CreateBand inserts a new band and returns it with its record ID.
func (c *Client) CreateBand(ctx context.Context, band Band) (*Band, error) {
	if band.Status == "" {
		band.Status = DefaultStatus
	}
	if band.DateAdded == "" {
		band.DateAdded = c.now().UTC().Format(time.RFC3339)
	}

	payload := map[string]any{
		"records": []map[string]any{{"fields": fieldsForCreate(band)}},
	}
	var resp struct {
		Records []apiRecord `json:"records"`
	}
	if err := c.call(ctx, http.MethodPost, "", payload, &resp); err != nil {
		return nil, fmt.Errorf("creating band %q: %w", band.Name, err)
	}
	if len(resp.Records) == 0 {
		return nil, fmt.Errorf("creating band %q: empty response", band.Name)
	}

	created := bandFromRecord(resp.Records[0])
	c.logger.Info("band created", slog.String("band", created.Name), slog.String("id", created.ID))
	return &created, nil
}

// UpdateBand applies a partial update and returns the stored band.
func (c *Client) UpdateBand(ctx context.Context, id string, update BandUpdate) (*Band, error) {
	fields := fieldsForUpdate(update)
	if len(fields) == 0 {
		return c.GetBand(ctx, id)
	}

	payload := map[string]any{"fields": fields}
	var rec apiRecord
	if err := c.call(ctx, http.MethodPatch, "/"+url.PathEscape(id), payload, &rec); err != nil {
		return nil, fmt.Errorf("updating band %s: %w", id, err)
	}
	band := bandFromRecord(rec)
	return &band, nil
}

// DeleteBand removes one band by record ID.
func (c *Client) DeleteBand(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting band %s: %w", id, err)
	}
	c.logger.Info("band deleted", slog.String("id", id))
	return nil
}

// call executes one API request with rate limiting and retry. 429s and
// server errors back off exponentially; client errors fail immediately.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("reading response: %w", err))
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return &NotFoundError{ID: path}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("airtable request throttled or failed",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode))
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		return nil
	})
}

func bandFromRecord(rec apiRecord) Band {
	get := func(key string) string {
		if v, ok := rec.Fields[key].(string); ok {
			return v
		}
		return ""
	}
	return Band{
		ID:               rec.ID,
		Name:             get(fieldName),
		Members:          get(fieldMembers),
		Song:             get(fieldSong),
		Instagram:        get(fieldInstagram),
		Notes:            get(fieldNotes),
		GeneratedMessage: get(fieldGeneratedMessage),
		FollowUpNotes:    get(fieldFollowUpNotes),
		Status:           statusFromRemote(get(fieldStatus)),
		DateAdded:        get(fieldDateAdded),
		LastUpdated:      get(fieldLastUpdated),
	}
}

// fieldsForCreate maps a band onto table columns. Last Updated is
// computed by the table and never written.
func fieldsForCreate(band Band) map[string]any {
	fields := map[string]any{
		fieldName:             band.Name,
		fieldSong:             band.Song,
		fieldInstagram:        band.Instagram,
		fieldNotes:            band.Notes,
		fieldGeneratedMessage: band.GeneratedMessage,
		fieldDateAdded:        band.DateAdded,
		fieldStatus:           statusToRemote(band.Status),
	}
	if band.Members != "" {
		fields[fieldMembers] = band.Members
	}
	if band.FollowUpNotes != "" {
		fields[fieldFollowUpNotes] = band.FollowUpNotes
	}
	return fields
}

func fieldsForUpdate(update BandUpdate) map[string]any {
	fields := make(map[string]any)
	set := func(key string, v *string) {
		if v != nil {
			fields[key] = *v
		}
	}
	set(fieldName, update.Name)
	set(fieldMembers, update.Members)
	set(fieldSong, update.Song)
	set(fieldInstagram, update.Instagram)
	set(fieldNotes, update.Notes)
	set(fieldGeneratedMessage, update.GeneratedMessage)
	set(fieldFollowUpNotes, update.FollowUpNotes)
	if update.Status != nil {
		fields[fieldStatus] = statusToRemote(*update.Status)
	}
	return fields
}
