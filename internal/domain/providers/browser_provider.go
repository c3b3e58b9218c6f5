package providers

import (
	"context"
	"time"
)

// WaitCondition is the page load event a navigation waits for
type WaitCondition string

const (
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitLoad             WaitCondition = "load"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

// LoadOptions controls a navigation
type LoadOptions struct {
	WaitUntil WaitCondition
	Timeout   time.Duration
}

// BrowserProvider opens isolated browsing sessions
type BrowserProvider interface {
	// NewPage opens a fresh context and page with a randomized user agent
	NewPage(ctx context.Context) (Page, error)

	// Close shuts the browser down
	Close() error
}

// Page is the browser automation surface used by the scrapers.
// Reads never fail: an absent element or a driver error yields ok=false.
type Page interface {
	// Load navigates to url; this is the only call that reports navigation errors
	Load(url string, opts LoadOptions) error

	// FindOne returns the first element matching selector
	FindOne(selector string) (Element, bool)

	// FindAll returns every element matching selector, possibly none
	FindAll(selector string) []Element

	// Text returns the trimmed inner text of the first match
	Text(selector string) (string, bool)

	// BodyText returns the rendered text of the document body
	BodyText() (string, bool)

	// HTML returns the current document markup
	HTML() (string, bool)

	// URL returns the current location
	URL() string

	// Fill types value into the first element matching selector
	Fill(selector, value string) error

	// Press sends a key press to the page
	Press(key string) error

	// WaitForSelector blocks until selector is attached or timeout passes
	WaitForSelector(selector string, timeout time.Duration) bool

	// WaitForNetworkIdle waits for the network to settle, best effort
	WaitForNetworkIdle(timeout time.Duration)

	// Download fetches url within the page session
	Download(url string) ([]byte, bool)

	// Close releases the page and its context
	Close() error
}

// Element is a handle to a DOM node
type Element interface {
	Text() (string, bool)
	Attribute(name string) (string, bool)
	Visible() bool
	ScrollIntoView()
	// Click tries a native click and falls back to a scripted click
	Click(timeout time.Duration) error
}
