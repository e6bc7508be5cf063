package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	artistPageURL = "https://open.spotify.com/artist/%s"
	userAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	pageLoadTimeout      = 30 * time.Second
	consentTimeout       = 2 * time.Second
	aboutButtonTimeout   = 10 * time.Second
	instagramLinkTimeout = 5 * time.Second
)

// SelectorList is an ordered fallback chain. The page's markup shifts
// under A/B tests and class renames, so each step tries several
// selectors, splitting its budget evenly between them.
type SelectorList []string

// Selector chains for the artist page. The Instagram link only enters
// the DOM after the about modal opens.
var (
	consentSelectors = SelectorList{
		`#onetrust-accept-btn-handler`,
		`//button[contains(., "Accept all")]`,
		`//button[contains(., "Accept")]`,
	}
	aboutButtonSelectors = SelectorList{
		`//button[contains(., "monthly listeners")]`,
		`[data-testid="artist-about-button"]`,
	}
	instagramLinkSelector = `a[href*="instagram.com"]`
)

// ChromeNavigator runs presence checks through a headless browser.
// One navigator holds one browser process; each artist check runs in
// its own tab.
type ChromeNavigator struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	logger        *slog.Logger
}

// NewChromeNavigator launches a headless browser. The returned
// navigator must be closed when the batch completes.
func NewChromeNavigator(ctx context.Context, logger *slog.Logger) (Navigator, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 720),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &ChromeNavigator{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		logger:        logger.With(slog.String("component", "chrome")),
	}, nil
}

func (n *ChromeNavigator) Close() error {
	err := chromedp.Cancel(n.browserCtx)
	n.cancelBrowser()
	n.cancelAlloc()
	return err
}

// CheckArtist opens the artist page, dismisses the consent banner if
// present, opens the about modal, and looks for an Instagram link.
func (n *ChromeNavigator) CheckArtist(ctx context.Context, artistID string) (Result, error) {
	tab, cancelTab := chromedp.NewContext(n.browserCtx)
	defer cancelTab()

	if err := runWithTimeout(tab, pageLoadTimeout,
		chromedp.Navigate(fmt.Sprintf(artistPageURL, artistID)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return Result{}, fmt.Errorf("loading artist page: %w", err)
	}

	if n.clickFirst(tab, consentSelectors, consentTimeout) {
		_ = chromedp.Run(tab, chromedp.Sleep(500*time.Millisecond))
	}

	if !n.clickFirst(tab, aboutButtonSelectors, aboutButtonTimeout) {
		return Result{}, fmt.Errorf("about button not found for artist %s", artistID)
	}
	_ = chromedp.Run(tab, chromedp.Sleep(1500*time.Millisecond))

	var href string
	var ok bool
	err := runWithTimeout(tab, instagramLinkTimeout,
		chromedp.AttributeValue(instagramLinkSelector, "href", &href, &ok, chromedp.ByQuery),
	)
	if err != nil || !ok || href == "" {
		// the modal rendered without a link, which is a real answer
		return Result{Outcome: OutcomeNotFound}, nil
	}

	handle, ok := ParseHandle(href)
	if !ok {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	n.logger.Debug("instagram link found",
		slog.String("artist", artistID),
		slog.String("handle", handle))

	return Result{Outcome: OutcomeFound, Handle: handle, URL: href}, nil
}

// clickFirst tries each selector in order, splitting the budget evenly,
// and clicks the first one that appears.
func (n *ChromeNavigator) clickFirst(ctx context.Context, selectors SelectorList, budget time.Duration) bool {
	per := budget / time.Duration(len(selectors))
	for _, sel := range selectors {
		err := runWithTimeout(ctx, per,
			chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible),
		)
		if err == nil {
			return true
		}
	}
	return false
}

func runWithTimeout(ctx context.Context, d time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}
