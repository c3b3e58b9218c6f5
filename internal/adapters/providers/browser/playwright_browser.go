package browser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/zatekoja/medisync/internal/domain/providers"
)

const readTimeout = 2 * time.Second

// UserAgents is the pool a new session picks from.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// Options configures the browser launch.
type Options struct {
	Headless bool
	Locale   string
	Timezone string
}

// PlaywrightBrowser implements BrowserProvider with a single Chromium instance.
type PlaywrightBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

var _ providers.BrowserProvider = (*PlaywrightBrowser)(nil)

// NewPlaywrightBrowser starts the driver and launches Chromium.
func NewPlaywrightBrowser(opts Options) (*PlaywrightBrowser, error) {
	if opts.Locale == "" {
		opts.Locale = "en-MY"
	}
	if opts.Timezone == "" {
		opts.Timezone = "Asia/Kuala_Lumpur"
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &PlaywrightBrowser{pw: pw, browser: browser, opts: opts}, nil
}

// NewPage opens an isolated context with a random user agent.
func (b *PlaywrightBrowser) NewPage(ctx context.Context) (providers.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browserCtx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  playwright.String(RandomUserAgent()),
		Locale:     playwright.String(b.opts.Locale),
		TimezoneId: playwright.String(b.opts.Timezone),
		Viewport: &playwright.Size{
			Width:  1366,
			Height: 900,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("creating page: %w", err)
	}
	return &pageAdapter{ctx: browserCtx, page: page}, nil
}

// Close shuts down the browser and the driver.
func (b *PlaywrightBrowser) Close() error {
	if err := b.browser.Close(); err != nil {
		b.pw.Stop()
		return fmt.Errorf("closing browser: %w", err)
	}
	return b.pw.Stop()
}

// RandomUserAgent picks one entry of UserAgents.
func RandomUserAgent() string {
	return UserAgents[rand.IntN(len(UserAgents))]
}

func waitUntil(c providers.WaitCondition) *playwright.WaitUntilState {
	switch c {
	case providers.WaitLoad:
		return playwright.WaitUntilStateLoad
	case providers.WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateDomcontentloaded
	}
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

type pageAdapter struct {
	ctx  playwright.BrowserContext
	page playwright.Page
}

func (p *pageAdapter) Load(url string, opts providers.LoadOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil(opts.WaitUntil),
		Timeout:   millis(opts.Timeout),
	})
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if resp != nil && resp.Status() >= 500 {
		return fmt.Errorf("navigating to %s: status %d", url, resp.Status())
	}
	return nil
}

func (p *pageAdapter) FindOne(selector string) (providers.Element, bool) {
	loc := p.page.Locator(selector)
	count, err := loc.Count()
	if err != nil || count == 0 {
		return nil, false
	}
	return &elementAdapter{loc: loc.First()}, true
}

func (p *pageAdapter) FindAll(selector string) []providers.Element {
	locs, err := p.page.Locator(selector).All()
	if err != nil {
		return nil
	}
	elements := make([]providers.Element, 0, len(locs))
	for _, l := range locs {
		elements = append(elements, &elementAdapter{loc: l})
	}
	return elements
}

func (p *pageAdapter) Text(selector string) (string, bool) {
	el, ok := p.FindOne(selector)
	if !ok {
		return "", false
	}
	return el.Text()
}

func (p *pageAdapter) BodyText() (string, bool) {
	text, err := p.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{Timeout: millis(readTimeout)})
	if err != nil {
		return "", false
	}
	return text, true
}

func (p *pageAdapter) HTML() (string, bool) {
	html, err := p.page.Content()
	if err != nil {
		return "", false
	}
	return html, true
}

func (p *pageAdapter) URL() string {
	return p.page.URL()
}

func (p *pageAdapter) Fill(selector, value string) error {
	return p.page.Locator(selector).First().Fill(value)
}

func (p *pageAdapter) Press(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *pageAdapter) WaitForSelector(selector string, timeout time.Duration) bool {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: millis(timeout),
	})
	return err == nil
}

func (p *pageAdapter) WaitForNetworkIdle(timeout time.Duration) {
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: millis(timeout),
	})
}

// Download reuses the session cookies so that protected brochures resolve.
func (p *pageAdapter) Download(url string) ([]byte, bool) {
	resp, err := p.ctx.Request().Get(url, playwright.APIRequestContextGetOptions{
		Timeout: millis(60 * time.Second),
	})
	if err != nil {
		return nil, false
	}
	defer resp.Dispose()
	if !resp.Ok() {
		return nil, false
	}
	body, err := resp.Body()
	if err != nil || len(body) == 0 {
		return nil, false
	}
	return body, true
}

func (p *pageAdapter) Close() error {
	pageErr := p.page.Close()
	ctxErr := p.ctx.Close()
	if pageErr != nil {
		return pageErr
	}
	return ctxErr
}

type elementAdapter struct {
	loc playwright.Locator
}

func (e *elementAdapter) Text() (string, bool) {
	text, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: millis(readTimeout)})
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func (e *elementAdapter) Attribute(name string) (string, bool) {
	value, err := e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: millis(readTimeout)})
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (e *elementAdapter) Visible() bool {
	visible, err := e.loc.IsVisible()
	return err == nil && visible
}

func (e *elementAdapter) ScrollIntoView() {
	_ = e.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: millis(readTimeout)})
}

func (e *elementAdapter) Click(timeout time.Duration) error {
	err := e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)})
	if err == nil {
		return nil
	}
	if _, jsErr := e.loc.Evaluate("el => el.click()", nil); jsErr != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}
