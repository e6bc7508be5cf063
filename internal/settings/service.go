// Package settings stores small operator-editable values: the outreach
// system prompt, the daily message counter, and Spotify OAuth tokens.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	keySystemPrompt   = "outreach.system_prompt"
	keyDailyCount     = "outreach.daily_count"
	keyDailyCountDate = "outreach.daily_count_date"

	// DailyLimit is the advisory outreach-per-day ceiling surfaced to clients.
	DailyLimit = 20
)

// DefaultSystemPrompt seeds the message generator before the operator edits it.
const DefaultSystemPrompt = "You are a friendly music enthusiast reaching out to bands on Instagram. " +
	"Write a personalized, genuine message that shows you've actually listened to their music. " +
	"Be concise (2-3 sentences), enthusiastic but not over-the-top, and mention specific details " +
	"from the user's notes. End with a clear call-to-action or question about their music."

// Service provides settings persistence on SQLite.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a settings service.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With(slog.String("component", "settings-service")),
		now:    time.Now,
	}
}

// SystemPrompt returns the stored system prompt, falling back to the default.
func (s *Service) SystemPrompt(ctx context.Context) (string, error) {
	v, err := s.get(ctx, keySystemPrompt)
	if err != nil {
		return "", err
	}
	if v == "" {
		return DefaultSystemPrompt, nil
	}
	return v, nil
}

// SetSystemPrompt stores a new system prompt.
func (s *Service) SetSystemPrompt(ctx context.Context, prompt string) error {
	return s.set(ctx, keySystemPrompt, prompt)
}

// DailyCount returns today's outreach counter, resetting it when the stored
// date is not today.
func (s *Service) DailyCount(ctx context.Context) (int, error) {
	date, err := s.get(ctx, keyDailyCountDate)
	if err != nil {
		return 0, err
	}
	today := s.now().Format("2006-01-02")
	if date != today {
		if err := s.resetDailyCount(ctx, today); err != nil {
			return 0, err
		}
		return 0, nil
	}

	v, err := s.get(ctx, keyDailyCount)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing daily count %q: %w", v, err)
	}
	return n, nil
}

// IncrementDailyCount bumps today's outreach counter and returns the new value.
func (s *Service) IncrementDailyCount(ctx context.Context) (int, error) {
	n, err := s.DailyCount(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := s.set(ctx, keyDailyCount, strconv.Itoa(n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Service) resetDailyCount(ctx context.Context, today string) error {
	if err := s.set(ctx, keyDailyCountDate, today); err != nil {
		return err
	}
	return s.set(ctx, keyDailyCount, "0")
}

// SaveToken persists the Spotify OAuth token pair. There is exactly one
// token row since the service operates for a single account.
func (s *Service) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("refusing to save empty token")
	}
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spotify_tokens (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN spotify_tokens.refresh_token ELSE excluded.refresh_token END,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, tok.AccessToken, tok.RefreshToken, tok.Expiry.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("saving spotify token: %w", err)
	}
	return nil
}

// Token loads the stored Spotify token. Returns nil, nil when no token exists.
func (s *Service) Token(ctx context.Context) (*oauth2.Token, error) {
	var access, refresh, expiresAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, expires_at FROM spotify_tokens WHERE id = 1",
	).Scan(&access, &refresh, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading spotify token: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		s.logger.Warn("stored token has unparseable expiry, treating as expired", "value", expiresAt)
		expiry = time.Time{}
	}

	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiry,
	}, nil
}

// ClearToken removes the stored Spotify token.
func (s *Service) ClearToken(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM spotify_tokens WHERE id = 1"); err != nil {
		return fmt.Errorf("clearing spotify token: %w", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading setting %q: %w", key, err)
	}
	return v, nil
}

func (s *Service) set(ctx context.Context, key, value string) error {
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("saving setting %q: %w", key, err)
	}
	return nil
}
