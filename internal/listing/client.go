// Package listing queries the external store listing service for the
// download links published for an app.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
)

const (
	// DefaultEndpoint is the rg-adguard file lookup API.
	DefaultEndpoint = "https://store.rg-adguard.net/api/GetFiles"
	// DefaultRing is the release channel queried.
	DefaultRing = "Retail"
	// DefaultTimeout bounds one listing request.
	DefaultTimeout = 60 * time.Second
	// DefaultUserAgent mimics a desktop browser; the service rejects unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxPageBytes caps the listing page read from the service.
	maxPageBytes = 8 << 20
)

// ErrNoCandidates means the listing returned no usable links.
var ErrNoCandidates = errors.New("no package links found")

// IdentifierType selects how the service interprets an identifier.
type IdentifierType string

const (
	ProductID         IdentifierType = "ProductId"
	PackageFamilyName IdentifierType = "PackageFamilyName"
)

// Request describes one listing query.
type Request struct {
	Type       IdentifierType
	Identifier string
	// Ring defaults to DefaultRing when empty.
	Ring string
}

// Options configures a Client. Zero fields take the package defaults.
type Options struct {
	Endpoint   string
	UserAgent  string
	Ring       string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the listing service.
type Client struct {
	endpoint  string
	userAgent string
	ring      string
	client    *http.Client
	logger    *slog.Logger
}

// NewClient creates a listing client.
func NewClient(opts Options) *Client {
	c := &Client{
		endpoint:  opts.Endpoint,
		userAgent: opts.UserAgent,
		ring:      opts.Ring,
		client:    opts.HTTPClient,
		logger:    logging.Ensure(opts.Logger),
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.ring == "" {
		c.ring = DefaultRing
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.client = &http.Client{Timeout: timeout}
	}
	return c
}

// Links posts the query and returns every https link on the result page, in
// page order. ErrNoCandidates is returned when the page has none.
func (c *Client) Links(ctx context.Context, req Request) ([]string, error) {
	if strings.TrimSpace(req.Identifier) == "" {
		return nil, fmt.Errorf("identifier is required")
	}
	if req.Type == "" {
		req.Type = ProductID
	}
	ring := req.Ring
	if ring == "" {
		ring = c.ring
	}

	form := url.Values{}
	form.Set("type", string(req.Type))
	form.Set("url", req.Identifier)
	form.Set("ring", ring)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("querying listing", "endpoint", c.endpoint, "type", req.Type, "identifier", req.Identifier, "ring", ring)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	links, err := ExtractLinks(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%s %q: %w", req.Type, req.Identifier, ErrNoCandidates)
	}

	c.logger.Debug("listing returned links", "count", len(links))
	return links, nil
}

// ExtractLinks returns the href of every anchor pointing at an https URL.
func ExtractLinks(r io.Reader) ([]string, error) {
	var links []string
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return links, nil
			}
			return links, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" && strings.HasPrefix(string(val), "https://") {
					links = append(links, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}
