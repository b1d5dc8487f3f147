package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const maxFeedBody = 64 << 20

// FeedClient retrieves the two JSON feeds, falling back through CORS proxies.
type FeedClient struct {
	Fetcher      Fetcher
	BidURL       string
	AgreementURL string
	Direct       bool
	Proxies      []ProxyRewrite
	ProxyTimeout time.Duration
}

// NewFeedClient builds a client from the registry, choosing the fetch engine it names.
func NewFeedClient(reg *Registry) *FeedClient {
	var fetcher Fetcher
	switch strings.ToLower(reg.Fetch.Engine) {
	case "colly":
		cf := NewCollyFetcher()
		if reg.Fetch.UserAgent != "" {
			cf.UserAgent = reg.Fetch.UserAgent
		}
		fetcher = cf
	default:
		hf := NewHTTPFetcher()
		if reg.Fetch.UserAgent != "" {
			hf.UserAgent = reg.Fetch.UserAgent
		}
		fetcher = hf
	}

	return &FeedClient{
		Fetcher:      fetcher,
		BidURL:       reg.Feeds.Bid.URL,
		AgreementURL: reg.Feeds.Agreement.URL,
		Direct:       reg.Fetch.Direct,
		Proxies:      reg.Proxies,
		ProxyTimeout: reg.ProxyTimeout(),
	}
}

type attempt struct {
	label   string
	url     string
	timeout time.Duration
}

func (c *FeedClient) attempts(target string) []attempt {
	var out []attempt
	if c.Direct || len(c.Proxies) == 0 {
		// primary path: no timeout
		out = append(out, attempt{label: "direct", url: target})
	}
	timeout := c.ProxyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	for _, p := range c.Proxies {
		out = append(out, attempt{label: p.Name, url: p.Rewrite(target), timeout: timeout})
	}
	return out
}

// FetchJSON retrieves target as JSON, trying the direct URL and then each proxy in order.
// Proxy envelopes ({"contents": ...}) are unwrapped. When every attempt fails the
// returned *FetchError carries the last error.
func (c *FeedClient) FetchJSON(ctx context.Context, target string) (json.RawMessage, error) {
	attempts := c.attempts(target)

	var lastErr error
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: target, Attempts: i, Err: err}
		}

		body, err := c.try(ctx, a)
		if err == nil {
			return unwrapEnvelope(body), nil
		}
		log.Printf("[Warn] Feed attempt %s failed for %s: %v", a.label, target, err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no transport strategy configured")
	}
	return nil, &FetchError{URL: target, Attempts: len(attempts), Err: lastErr}
}

func (c *FeedClient) try(ctx context.Context, a attempt) (json.RawMessage, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	doc, err := c.Fetcher.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	body, err := io.ReadAll(io.LimitReader(doc.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	if len(body) > 0 && body[0] == '<' {
		return nil, fmt.Errorf("received HTML page instead of JSON: %q", htmlTitle(body))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("received invalid JSON (%d bytes)", len(body))
	}
	return json.RawMessage(body), nil
}

// htmlTitle extracts a short description of an HTML error page.
func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		title = TruncateText(cleanText(doc.Find("body").Text()), 120)
	}
	return title
}

// TruncateText cuts a string to max length, appending ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return string(r[:maxLen-3]) + "..."
	}
	return string(r[:maxLen])
}

// unwrapEnvelope replaces a {"contents": ...} proxy envelope by its payload.
// A string payload is parsed as JSON; when that fails the envelope is kept.
func unwrapEnvelope(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	contents, ok := env["contents"]
	if !ok || len(contents) == 0 || string(contents) == "null" {
		return raw
	}

	if contents[0] != '"' {
		return contents
	}

	var inner string
	if err := json.Unmarshal(contents, &inner); err != nil {
		return raw
	}
	inner = strings.TrimSpace(inner)
	if !json.Valid([]byte(inner)) {
		log.Printf("[Warn] Failed to parse proxy envelope contents (%d bytes)", len(inner))
		return raw
	}
	return json.RawMessage(inner)
}

// FetchBoth retrieves the bid and agreement feeds concurrently.
// A failure of either aborts the whole operation.
func (c *FeedClient) FetchBoth(ctx context.Context) (bids, agreements json.RawMessage, err error) {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		raw, err := c.FetchJSON(egCtx, c.BidURL)
		if err != nil {
			return err
		}
		bids = raw
		return nil
	})
	eg.Go(func() error {
		raw, err := c.FetchJSON(egCtx, c.AgreementURL)
		if err != nil {
			return err
		}
		agreements = raw
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return bids, agreements, nil
}

// RawFeedResult is one side of a debug dump.
type RawFeedResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Status  int             `json:"status"`
	Error   string          `json:"error,omitempty"`
}

// RawDump is the debug snapshot of both feeds as received.
type RawDump struct {
	Timestamp       time.Time     `json:"timestamp"`
	BidAPIURL       string        `json:"bid_api_url"`
	AgreementAPIURL string        `json:"agreement_api_url"`
	BidData         RawFeedResult `json:"bid_data"`
	AgreementData   RawFeedResult `json:"agreement_data"`
}

// DumpRaw fetches each feed independently; failures are reported per feed.
func (c *FeedClient) DumpRaw(ctx context.Context) RawDump {
	fetchSafe := func(url string) RawFeedResult {
		raw, err := c.FetchJSON(ctx, url)
		if err != nil {
			res := RawFeedResult{Error: err.Error()}
			var se *StatusError
			if errors.As(err, &se) {
				res.Status = se.Code
			}
			return res
		}
		return RawFeedResult{Success: true, Status: 200, Data: raw}
	}

	return RawDump{
		Timestamp:       time.Now().UTC(),
		BidAPIURL:       c.BidURL,
		AgreementAPIURL: c.AgreementURL,
		BidData:         fetchSafe(c.BidURL),
		AgreementData:   fetchSafe(c.AgreementURL),
	}
}
