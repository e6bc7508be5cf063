package spotify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/sydlexius/clearwater/internal/config"
)

// refreshSkew refreshes tokens early so an in-flight request never
// carries one that expires mid-call.
const refreshSkew = 60 * time.Second

var scopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-library-read",
}

// TokenStore persists OAuth tokens across restarts.
type TokenStore interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, tok *oauth2.Token) error
}

// Authenticator drives the authorization-code flow and hands out
// fresh access tokens, refreshing and persisting them as needed.
type Authenticator struct {
	oauth  *oauth2.Config
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthenticator(cfg config.SpotifyConfig, store TokenStore, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.spotify.com/authorize",
				TokenURL: "https://accounts.spotify.com/api/token",
			},
		},
		store:  store,
		logger: logger.With(slog.String("component", "spotify-auth")),
		now:    time.Now,
	}
}

// AuthURL returns the authorize URL the browser should be sent to.
func (a *Authenticator) AuthURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and persists it.
func (a *Authenticator) Exchange(ctx context.Context, code string) error {
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := a.store.SaveToken(ctx, tok); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	a.logger.Info("spotify account connected")
	return nil
}

// Authenticated reports whether a token is on file.
func (a *Authenticator) Authenticated(ctx context.Context) (bool, error) {
	tok, err := a.store.Token(ctx)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// AccessToken returns a valid access token, refreshing the stored one
// when it is within refreshSkew of expiry. Refreshed tokens are
// written back so restarts pick them up.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	tok, err := a.store.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("loading token: %w", err)
	}
	if tok == nil {
		return "", ErrNotAuthenticated
	}
	if tok.Expiry.After(a.now().Add(refreshSkew)) {
		return tok.AccessToken, nil
	}
	fresh, err := a.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := a.store.SaveToken(ctx, fresh); err != nil {
			return "", fmt.Errorf("saving refreshed token: %w", err)
		}
		a.logger.Debug("access token refreshed", slog.Time("expiry", fresh.Expiry))
	}
	return fresh.AccessToken, nil
}
