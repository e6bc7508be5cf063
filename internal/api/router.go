package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sydlexius/clearwater/internal/analysis"
	"github.com/sydlexius/clearwater/internal/api/middleware"
	"github.com/sydlexius/clearwater/internal/crm"
	"github.com/sydlexius/clearwater/internal/eligibility"
	"github.com/sydlexius/clearwater/internal/event"
	"github.com/sydlexius/clearwater/internal/message"
	"github.com/sydlexius/clearwater/internal/spotify"
)

// Authenticator is the OAuth surface the router needs.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
	Authenticated(ctx context.Context) (bool, error)
}

// PlaylistLister lists the connected account's playlists.
type PlaylistLister interface {
	ListPlaylists(ctx context.Context) ([]spotify.Playlist, error)
}

// Analyzer runs one playlist analysis.
type Analyzer interface {
	Analyze(ctx context.Context, playlistID string, filters eligibility.Filters, sink analysis.Sink) (*analysis.Report, error)
}

// Cleaner applies a reviewed removal set.
type Cleaner interface {
	RemoveArtists(ctx context.Context, playlistID string, artists []analysis.ArtistResult) (*analysis.CleanResult, error)
}

// BandStore is the CRM surface the router needs.
type BandStore interface {
	ListBands(ctx context.Context) ([]crm.Band, error)
	GetBand(ctx context.Context, id string) (*crm.Band, error)
	CreateBand(ctx context.Context, band crm.Band) (*crm.Band, error)
	UpdateBand(ctx context.Context, id string, update crm.BandUpdate) (*crm.Band, error)
	DeleteBand(ctx context.Context, id string) error
}

// MessageGenerator drafts outreach messages.
type MessageGenerator interface {
	Configured() bool
	Generate(ctx context.Context, req message.Request) (string, error)
}

// SettingsService is the settings surface the router needs.
type SettingsService interface {
	SystemPrompt(ctx context.Context) (string, error)
	SetSystemPrompt(ctx context.Context, prompt string) error
	DailyCount(ctx context.Context) (int, error)
	ClearToken(ctx context.Context) error
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Auth      Authenticator
	Playlists PlaylistLister
	Analyzer  Analyzer
	Cleaner   Cleaner
	Bands     BandStore
	Generator MessageGenerator
	Settings  SettingsService
	Bus       *event.Bus
	Logger    *slog.Logger
	BasePath  string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	auth      Authenticator
	playlists PlaylistLister
	analyzer  Analyzer
	cleaner   Cleaner
	bands     BandStore
	generator MessageGenerator
	settings  SettingsService
	bus       *event.Bus
	logger    *slog.Logger
	basePath  string
	now       func() time.Time
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		auth:      deps.Auth,
		playlists: deps.Playlists,
		analyzer:  deps.Analyzer,
		cleaner:   deps.Cleaner,
		bands:     deps.Bands,
		generator: deps.Generator,
		settings:  deps.Settings,
		bus:       deps.Bus,
		logger:    deps.Logger,
		basePath:  deps.BasePath,
		now:       time.Now,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	analyzeRL := middleware.NewAnalyzeRateLimiter(20*time.Second, 2)
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/health", r.handleHealth)

	mux.HandleFunc("GET "+bp+"/api/spotify/auth-url", r.handleAuthURL)
	mux.HandleFunc("GET "+bp+"/api/spotify/callback", r.handleCallback)
	mux.HandleFunc("GET "+bp+"/api/spotify/status", r.handleAuthStatus)
	mux.HandleFunc("GET "+bp+"/api/spotify/playlists", r.handleListPlaylists)
	mux.HandleFunc("DELETE "+bp+"/api/spotify/token", r.handleDisconnect)

	mux.Handle("POST "+bp+"/api/analyze", analyzeRL.Middleware(http.HandlerFunc(r.handleAnalyze)))
	mux.HandleFunc("POST "+bp+"/api/clean", r.handleClean)

	mux.HandleFunc("GET "+bp+"/api/bands", r.handleListBands)
	mux.HandleFunc("POST "+bp+"/api/bands", r.handleCreateBand)
	mux.HandleFunc("PATCH "+bp+"/api/bands/{id}", r.handleUpdateBand)
	mux.HandleFunc("DELETE "+bp+"/api/bands/{id}", r.handleDeleteBand)

	mux.HandleFunc("POST "+bp+"/api/generate-message", r.handleGenerateMessage)
	mux.HandleFunc("GET "+bp+"/api/system-prompt", r.handleGetSystemPrompt)
	mux.HandleFunc("POST "+bp+"/api/system-prompt", r.handleSetSystemPrompt)
	mux.HandleFunc("GET "+bp+"/api/daily-count", r.handleDailyCount)

	return middleware.Logging(r.logger)(mux)
}
