package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/clearwater/internal/analysis"
	"github.com/sydlexius/clearwater/internal/crm"
	"github.com/sydlexius/clearwater/internal/eligibility"
	"github.com/sydlexius/clearwater/internal/event"
	"github.com/sydlexius/clearwater/internal/message"
	"github.com/sydlexius/clearwater/internal/spotify"
)

type fakeAuth struct {
	authenticated bool
	exchangeErr   error
	exchanged     []string
}

func (f *fakeAuth) AuthURL(state string) string {
	return "https://accounts.spotify.com/authorize?state=" + state
}

func (f *fakeAuth) Exchange(_ context.Context, code string) error {
	f.exchanged = append(f.exchanged, code)
	return f.exchangeErr
}

func (f *fakeAuth) Authenticated(context.Context) (bool, error) {
	return f.authenticated, nil
}

type fakePlaylists struct {
	playlists []spotify.Playlist
	err       error
}

func (f *fakePlaylists) ListPlaylists(context.Context) ([]spotify.Playlist, error) {
	return f.playlists, f.err
}

type fakeAnalyzer struct {
	report  *analysis.Report
	err     error
	events  []analysis.ProgressEvent
	filters eligibility.Filters
}

func (f *fakeAnalyzer) Analyze(_ context.Context, playlistID string, filters eligibility.Filters, sink analysis.Sink) (*analysis.Report, error) {
	f.filters = filters
	for _, e := range f.events {
		if sink != nil {
			sink(e)
		}
	}
	return f.report, f.err
}

type fakeCleaner struct {
	result     *analysis.CleanResult
	err        error
	playlistID string
}

func (f *fakeCleaner) RemoveArtists(_ context.Context, playlistID string, _ []analysis.ArtistResult) (*analysis.CleanResult, error) {
	f.playlistID = playlistID
	return f.result, f.err
}

type fakeBands struct {
	bands     []crm.Band
	created   []crm.Band
	updates   map[string]crm.BandUpdate
	deleted   []string
	getErr    error
	updateErr error
}

func (f *fakeBands) ListBands(context.Context) ([]crm.Band, error) {
	return f.bands, nil
}

func (f *fakeBands) GetBand(_ context.Context, id string) (*crm.Band, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, b := range f.bands {
		if b.ID == id {
			band := b
			return &band, nil
		}
	}
	return nil, &crm.NotFoundError{ID: id}
}

func (f *fakeBands) CreateBand(_ context.Context, band crm.Band) (*crm.Band, error) {
	band.ID = "rec-created"
	f.created = append(f.created, band)
	return &band, nil
}

func (f *fakeBands) UpdateBand(_ context.Context, id string, update crm.BandUpdate) (*crm.Band, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updates == nil {
		f.updates = make(map[string]crm.BandUpdate)
	}
	f.updates[id] = update
	band, err := f.GetBand(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if update.Status != nil {
		band.Status = *update.Status
	}
	return band, nil
}

func (f *fakeBands) DeleteBand(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeGenerator struct {
	configured bool
	text       string
	err        error
	last       message.Request
}

func (f *fakeGenerator) Configured() bool { return f.configured }

func (f *fakeGenerator) Generate(_ context.Context, req message.Request) (string, error) {
	f.last = req
	return f.text, f.err
}

type fakeSettings struct {
	prompt  string
	saved   string
	count   int
	cleared bool
}

func (f *fakeSettings) SystemPrompt(context.Context) (string, error) { return f.prompt, nil }

func (f *fakeSettings) SetSystemPrompt(_ context.Context, prompt string) error {
	f.saved = prompt
	return nil
}

func (f *fakeSettings) DailyCount(context.Context) (int, error) { return f.count, nil }

func (f *fakeSettings) ClearToken(context.Context) error {
	f.cleared = true
	return nil
}

type routerFixture struct {
	router    *Router
	auth      *fakeAuth
	playlists *fakePlaylists
	analyzer  *fakeAnalyzer
	cleaner   *fakeCleaner
	bands     *fakeBands
	generator *fakeGenerator
	settings  *fakeSettings
	events    chan event.Event
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &routerFixture{
		auth:      &fakeAuth{},
		playlists: &fakePlaylists{},
		analyzer:  &fakeAnalyzer{},
		cleaner:   &fakeCleaner{},
		bands:     &fakeBands{},
		generator: &fakeGenerator{configured: true, text: "hey!"},
		settings:  &fakeSettings{prompt: "default prompt", count: 3},
		events:    make(chan event.Event, 16),
	}

	bus := event.NewBus(logger, 16)
	for _, typ := range []event.Type{event.BandCreated, event.BandMessaged} {
		bus.Subscribe(typ, func(e event.Event) { f.events <- e })
	}
	go bus.Start()
	t.Cleanup(bus.Stop)

	f.router = NewRouter(RouterDeps{
		Auth:      f.auth,
		Playlists: f.playlists,
		Analyzer:  f.analyzer,
		Cleaner:   f.cleaner,
		Bands:     f.bands,
		Generator: f.generator,
		Settings:  f.settings,
		Bus:       bus,
		Logger:    logger,
	})
	return f
}

func (f *routerFixture) waitEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-f.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandleHealthRouted(t *testing.T) {
	f := newTestRouter(t)
	h := f.router.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestHandleAuthURL(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/spotify/auth-url", nil)
	w := httptest.NewRecorder()
	f.router.handleAuthURL(w, req)

	body := decodeBody(t, w)
	state, _ := body["state"].(string)
	if state == "" {
		t.Fatal("expected a non-empty state")
	}
	url, _ := body["url"].(string)
	if !strings.Contains(url, "state="+state) {
		t.Errorf("url %q does not carry state %q", url, state)
	}
}

func TestHandleCallback(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/spotify/callback?code=abc", nil)
	w := httptest.NewRecorder()
	f.router.handleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if len(f.auth.exchanged) != 1 || f.auth.exchanged[0] != "abc" {
		t.Errorf("exchanged = %v, want [abc]", f.auth.exchanged)
	}
}

func TestHandleCallbackMissingCode(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/spotify/callback", nil)
	w := httptest.NewRecorder()
	f.router.handleCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleDisconnect(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/spotify/token", nil)
	w := httptest.NewRecorder()
	f.router.handleDisconnect(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !f.settings.cleared {
		t.Error("stored token was not cleared")
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestHandleListPlaylistsNotAuthenticated(t *testing.T) {
	f := newTestRouter(t)
	f.playlists.err = spotify.ErrNotAuthenticated

	req := httptest.NewRequest(http.MethodGet, "/api/spotify/playlists", nil)
	w := httptest.NewRecorder()
	f.router.handleListPlaylists(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeBody(t, w)
	if body["error"] != "not_authenticated" {
		t.Errorf("error = %v, want not_authenticated", body["error"])
	}
}

func TestHandleListPlaylistsEmpty(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/spotify/playlists", nil)
	w := httptest.NewRecorder()
	f.router.handleListPlaylists(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func streamRecords(t *testing.T, body string) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		data, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			t.Fatalf("malformed stream chunk: %q", chunk)
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			t.Fatalf("decoding stream record %q: %v", data, err)
		}
		records = append(records, record)
	}
	return records
}

func TestHandleAnalyzeStream(t *testing.T) {
	f := newTestRouter(t)
	f.analyzer.events = []analysis.ProgressEvent{
		{Phase: analysis.PhaseFetchingArtists, Current: 0, Total: 2},
		{Phase: analysis.PhaseScrapingPresence, Current: 1, Total: 2, Artist: "Night Lakes"},
	}
	f.analyzer.report = &analysis.Report{RunID: "run-1", TotalArtists: 2}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"playlistId":"pl1"}`))
	w := httptest.NewRecorder()
	f.router.handleAnalyze(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	records := streamRecords(t, w.Body.String())
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3: %v", len(records), records)
	}
	for i, rec := range records[:2] {
		if rec["type"] != "progress" {
			t.Errorf("record %d type = %v, want progress", i, rec["type"])
		}
	}
	progress, _ := records[1]["data"].(map[string]any)
	if progress == nil {
		t.Fatalf("progress record has no data payload: %v", records[1])
	}
	if progress["artist"] != "Night Lakes" {
		t.Errorf("artist = %v, want Night Lakes", progress["artist"])
	}
	if progress["phase"] != string(analysis.PhaseScrapingPresence) {
		t.Errorf("phase = %v, want %v", progress["phase"], analysis.PhaseScrapingPresence)
	}
	last := records[2]
	if last["type"] != "complete" {
		t.Fatalf("terminal type = %v, want complete", last["type"])
	}
	report, _ := last["data"].(map[string]any)
	if report == nil {
		t.Fatalf("complete record has no data payload: %v", last)
	}
	if report["runId"] != "run-1" {
		t.Errorf("runId = %v, want run-1", report["runId"])
	}

	if f.analyzer.filters != eligibility.DefaultFilters() {
		t.Errorf("filters = %+v, want defaults", f.analyzer.filters)
	}
}

func TestHandleAnalyzeCustomFilters(t *testing.T) {
	f := newTestRouter(t)
	f.analyzer.report = &analysis.Report{RunID: "run-2"}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(
		`{"playlistId":"pl1","filters":{"popularityMin":5,"popularityMax":30,"maxYearsSinceRelease":1,"requireInstagram":false,"skipCrmArtists":true}}`))
	w := httptest.NewRecorder()
	f.router.handleAnalyze(w, req)

	want := eligibility.Filters{
		PopularityMin:        5,
		PopularityMax:        30,
		MaxYearsSinceRelease: 1,
		RequireInstagram:     false,
		SkipCRMArtists:       true,
	}
	if f.analyzer.filters != want {
		t.Errorf("filters = %+v, want %+v", f.analyzer.filters, want)
	}
}

func TestHandleAnalyzeErrorIsTerminalRecord(t *testing.T) {
	f := newTestRouter(t)
	f.analyzer.err = spotify.ErrNotAuthenticated

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"playlistId":"pl1"}`))
	w := httptest.NewRecorder()
	f.router.handleAnalyze(w, req)

	records := streamRecords(t, w.Body.String())
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %v", len(records), records)
	}
	if records[0]["type"] != "error" || records[0]["error"] != "not_authenticated" {
		t.Errorf("terminal record = %v", records[0])
	}
}

func TestHandleAnalyzeMissingPlaylist(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	f.router.handleAnalyze(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleClean(t *testing.T) {
	f := newTestRouter(t)
	f.cleaner.result = &analysis.CleanResult{Success: true, Removed: 4}

	req := httptest.NewRequest(http.MethodPost, "/api/clean", strings.NewReader(
		`{"playlistId":"pl1","artistsToRemove":[{"id":"a1","name":"A"}]}`))
	w := httptest.NewRecorder()
	f.router.handleClean(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if f.cleaner.playlistID != "pl1" {
		t.Errorf("playlistID = %q, want pl1", f.cleaner.playlistID)
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["removed"] != float64(4) {
		t.Errorf("removed = %v, want 4", body["removed"])
	}
}

func TestHandleCreateBandForcesStatus(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bands", strings.NewReader(
		`{"bandName":"Night Lakes","instagram":"@nightlakes","status":"messaged"}`))
	w := httptest.NewRecorder()
	f.router.handleCreateBand(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if len(f.bands.created) != 1 {
		t.Fatalf("created %d bands, want 1", len(f.bands.created))
	}
	if got := f.bands.created[0].Status; got != crm.DefaultStatus {
		t.Errorf("status = %q, want %q", got, crm.DefaultStatus)
	}

	e := f.waitEvent(t)
	if e.Type != event.BandCreated {
		t.Errorf("event type = %v, want %v", e.Type, event.BandCreated)
	}
	if e.Data["bandName"] != "Night Lakes" {
		t.Errorf("bandName = %v, want Night Lakes", e.Data["bandName"])
	}
}

func TestHandleCreateBandMissingName(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bands", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	f.router.handleCreateBand(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleUpdateBandPublishesMessaged(t *testing.T) {
	f := newTestRouter(t)
	f.bands.bands = []crm.Band{{ID: "rec1", Name: "Night Lakes", Status: "not_messaged"}}

	req := httptest.NewRequest(http.MethodPatch, "/api/bands/rec1",
		strings.NewReader(`{"status":"messaged"}`))
	req.SetPathValue("id", "rec1")
	w := httptest.NewRecorder()
	f.router.handleUpdateBand(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	e := f.waitEvent(t)
	if e.Type != event.BandMessaged {
		t.Errorf("event type = %v, want %v", e.Type, event.BandMessaged)
	}
}

func TestHandleUpdateBandAlreadyMessaged(t *testing.T) {
	f := newTestRouter(t)
	f.bands.bands = []crm.Band{{ID: "rec1", Name: "Night Lakes", Status: "messaged"}}

	req := httptest.NewRequest(http.MethodPatch, "/api/bands/rec1",
		strings.NewReader(`{"status":"messaged"}`))
	req.SetPathValue("id", "rec1")
	w := httptest.NewRecorder()
	f.router.handleUpdateBand(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	select {
	case e := <-f.events:
		t.Fatalf("unexpected event %v", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleUpdateBandNotFound(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/bands/missing",
		strings.NewReader(`{"notes":"x"}`))
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	f.router.handleUpdateBand(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleDeleteBand(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/bands/rec1", nil)
	req.SetPathValue("id", "rec1")
	w := httptest.NewRecorder()
	f.router.handleDeleteBand(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(f.bands.deleted) != 1 || f.bands.deleted[0] != "rec1" {
		t.Errorf("deleted = %v, want [rec1]", f.bands.deleted)
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestHandleGenerateMessageFallsBackToStoredPrompt(t *testing.T) {
	f := newTestRouter(t)
	f.settings.prompt = "stored prompt"

	req := httptest.NewRequest(http.MethodPost, "/api/generate-message",
		strings.NewReader(`{"bandName":"Night Lakes","song":"Undertow"}`))
	w := httptest.NewRecorder()
	f.router.handleGenerateMessage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if f.generator.last.SystemPrompt != "stored prompt" {
		t.Errorf("system prompt = %q, want stored prompt", f.generator.last.SystemPrompt)
	}
	body := decodeBody(t, w)
	if body["message"] != "hey!" {
		t.Errorf("message = %v, want hey!", body["message"])
	}
}

func TestHandleGenerateMessageExplicitPromptWins(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-message",
		strings.NewReader(`{"bandName":"Night Lakes","systemPrompt":"be brief"}`))
	w := httptest.NewRecorder()
	f.router.handleGenerateMessage(w, req)

	if f.generator.last.SystemPrompt != "be brief" {
		t.Errorf("system prompt = %q, want be brief", f.generator.last.SystemPrompt)
	}
}

func TestHandleGenerateMessageUnconfigured(t *testing.T) {
	f := newTestRouter(t)
	f.generator.configured = false

	req := httptest.NewRequest(http.MethodPost, "/api/generate-message",
		strings.NewReader(`{"bandName":"Night Lakes"}`))
	w := httptest.NewRecorder()
	f.router.handleGenerateMessage(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleSystemPromptRoundTrip(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/system-prompt",
		strings.NewReader(`{"prompt":"new prompt"}`))
	w := httptest.NewRecorder()
	f.router.handleSetSystemPrompt(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d, want %d", w.Code, http.StatusOK)
	}
	if f.settings.saved != "new prompt" {
		t.Errorf("saved = %q, want new prompt", f.settings.saved)
	}

	f.settings.prompt = "new prompt"
	req = httptest.NewRequest(http.MethodGet, "/api/system-prompt", nil)
	w = httptest.NewRecorder()
	f.router.handleGetSystemPrompt(w, req)

	body := decodeBody(t, w)
	if body["prompt"] != "new prompt" {
		t.Errorf("prompt = %v, want new prompt", body["prompt"])
	}
}

func TestHandleDailyCount(t *testing.T) {
	f := newTestRouter(t)
	f.settings.count = 7

	req := httptest.NewRequest(http.MethodGet, "/api/daily-count", nil)
	w := httptest.NewRecorder()
	f.router.handleDailyCount(w, req)

	body := decodeBody(t, w)
	if body["count"] != float64(7) {
		t.Errorf("count = %v, want 7", body["count"])
	}
	if body["limit"] != float64(20) {
		t.Errorf("limit = %v, want 20", body["limit"])
	}
}
