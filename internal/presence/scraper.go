package presence

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sydlexius/clearwater/internal/config"
)

// Navigator drives a browser session for the lifetime of one batch.
type Navigator interface {
	// CheckArtist visits the artist's profile page and reports whether
	// an Instagram link is present.
	CheckArtist(ctx context.Context, artistID string) (Result, error)
	Close() error
}

// NavigatorFactory opens a fresh browser session. The session is only
// created when a batch actually has artists to visit.
type NavigatorFactory func(ctx context.Context) (Navigator, error)

// Progress is invoked after each resolved artist, cached hits included.
type Progress func(done, total int, artistID string, result Result)

// Scraper resolves presence for batches of artists. Visits are strictly
// sequential with a randomized pause between them; a per-batch cap
// bounds how many profiles one run will touch.
type Scraper struct {
	cfg     config.ScraperConfig
	cache   *Cache
	factory NavigatorFactory
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() float64
	now     func() time.Time
}

func NewScraper(cfg config.ScraperConfig, factory NavigatorFactory, logger *slog.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		cache:   NewCache(cfg.CacheSize),
		factory: factory,
		logger:  logger.With(slog.String("component", "presence")),
		sleep:   sleepCtx,
		jitter:  rand.Float64,
		now:     time.Now,
	}
}

// Check resolves presence for a single artist.
func (s *Scraper) Check(ctx context.Context, artistID string) Result {
	return s.CheckBatch(ctx, []string{artistID}, nil)[artistID]
}

// CheckBatch resolves every artist ID to a Result. Cached conclusive
// results are reused without a visit when configured; artists past the
// visit cap come back rate-limited. The browser session, if one was
// needed, is closed before returning.
func (s *Scraper) CheckBatch(ctx context.Context, artistIDs []string, progress Progress) map[string]Result {
	results := make(map[string]Result, len(artistIDs))
	total := len(artistIDs)
	done := 0

	report := func(artistID string, r Result) {
		results[artistID] = r
		done++
		if progress != nil {
			progress(done, total, artistID, r)
		}
	}

	var toVisit []string
	for _, id := range artistIDs {
		if _, dup := results[id]; dup {
			done++
			continue
		}
		if s.cfg.ReuseResults {
			if cached, ok := s.cache.Get(id); ok {
				report(id, cached)
				continue
			}
		}
		toVisit = append(toVisit, id)
		results[id] = Result{} // reserve to dedupe
	}

	capped := toVisit
	var overflow []string
	if s.cfg.MaxChecks > 0 && len(toVisit) > s.cfg.MaxChecks {
		capped = toVisit[:s.cfg.MaxChecks]
		overflow = toVisit[s.cfg.MaxChecks:]
	}

	if len(capped) > 0 {
		s.visit(ctx, capped, report)
	}
	for _, id := range overflow {
		report(id, Result{Outcome: OutcomeRateLimited, CheckedAt: s.now()})
	}

	s.logger.Info("presence batch resolved",
		slog.Int("artists", total),
		slog.Int("visited", len(capped)),
		slog.Int("skipped", len(overflow)))

	return results
}

func (s *Scraper) visit(ctx context.Context, artistIDs []string, report func(string, Result)) {
	nav, err := s.factory(ctx)
	if err != nil {
		s.logger.Error("browser session failed to start", slog.Any("error", err))
		for _, id := range artistIDs {
			report(id, Result{Outcome: OutcomeUnreachable, CheckedAt: s.now()})
		}
		return
	}
	defer func() {
		if err := nav.Close(); err != nil {
			s.logger.Warn("closing browser session", slog.Any("error", err))
		}
	}()

	for i, id := range artistIDs {
		if i > 0 {
			if err := s.sleep(ctx, s.delay()); err != nil {
				for _, rest := range artistIDs[i:] {
					report(rest, Result{Outcome: OutcomeUnreachable, CheckedAt: s.now()})
				}
				return
			}
		}

		r, err := nav.CheckArtist(ctx, id)
		if err != nil {
			s.logger.Warn("presence check failed",
				slog.String("artist", id),
				slog.Any("error", err))
			r = Result{Outcome: OutcomeUnreachable}
		}
		r.CheckedAt = s.now()
		s.cache.Put(id, r)
		report(id, r)
	}
}

// delay returns a pause in the configured window.
func (s *Scraper) delay() time.Duration {
	minD := time.Duration(s.cfg.MinDelayMS) * time.Millisecond
	maxD := time.Duration(s.cfg.MaxDelayMS) * time.Millisecond
	if maxD <= minD {
		return minD
	}
	return minD + time.Duration(s.jitter()*float64(maxD-minD))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("batch interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
