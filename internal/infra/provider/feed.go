package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/resilience/circuitbreaker"
	"scout-alerts/internal/resilience/retry"
	"scout-alerts/internal/usecase/poll"
)

// TypeFeed is the subscription type of external RSS/Atom feeds.
const TypeFeed = "feed"

const untitled = "(Untitled)"

// Feed follows an arbitrary RSS or Atom feed. The feed URL is the
// subscription's InterestIn. Feed URLs come from users, so the adapter
// downloads them itself with a short timeout, a size cap and SSRF checks.
type Feed struct {
	client         *http.Client
	maxBodySize    int64
	denyPrivateIPs bool
	userAgent      string
	// one breaker per feed host so a dead site only trips its own
	breakers *circuitbreaker.Set
}

// NewFeed creates the feed adapter.
//
// Parameters:
//   - timeout: per-download timeout (5s by default)
//   - maxBodySize: feeds larger than this are rejected as malformed
//   - denyPrivateIPs: reject feeds on private or loopback addresses
func NewFeed(timeout time.Duration, maxBodySize int64, denyPrivateIPs bool) *Feed {
	f := &Feed{
		breakers:       circuitbreaker.NewSet(circuitbreaker.FeedFetchConfig),
		maxBodySize:    maxBodySize,
		denyPrivateIPs: denyPrivateIPs,
		userAgent:      DefaultFetchConfig().UserAgent,
	}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			return validateURL(req.URL.String(), f.denyPrivateIPs)
		},
	}
	return f
}

var (
	_ poll.Adapter      = (*Feed)(nil)
	_ poll.RawFetcher   = (*Feed)(nil)
	_ poll.DetailFinder = (*Feed)(nil)
)

func (a *Feed) Type() string { return TypeFeed }

func (a *Feed) URL(sub *entity.Subscription, _ string, _ poll.Options) (string, error) {
	if sub.InterestIn == "" {
		return "", fmt.Errorf("feed subscription %d has no url", sub.ID)
	}
	return sub.InterestIn, nil
}

// FetchRaw implements poll.RawFetcher.
func (a *Feed) FetchRaw(ctx context.Context, feedURL string) ([]byte, error) {
	if err := validateURL(feedURL, a.denyPrivateIPs); err != nil {
		return nil, err
	}
	cb := a.breakers.Get(hostOf(feedURL))
	body, err := circuitbreaker.Do(cb, func() ([]byte, error) {
		return a.download(ctx, feedURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("feed fetch circuit breaker open, request rejected",
				slog.String("service", cb.Name()),
				slog.String("url", feedURL))
		}
		return nil, err
	}
	return body, nil
}

func (a *Feed) download(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: "feed got invalid response code: " + resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	if int64(len(body)) > a.maxBodySize {
		return nil, fmt.Errorf("%w: feed is bigger than %d bytes", poll.ErrMalformedResponse, a.maxBodySize)
	}
	return body, nil
}

func parseFeed(body []byte) (*gofeed.Feed, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poll.ErrMalformedResponse, err)
	}
	return feed, nil
}

// Parse returns one item per entry that has both a publication date and a link.
func (a *Feed) Parse(body []byte, _ string, _ poll.Options) ([]*entity.SeenItem, error) {
	feed, err := parseFeed(body)
	if err != nil {
		return nil, err
	}
	items := make([]*entity.SeenItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if item := feedItem(entry); item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func feedItem(entry *gofeed.Item) *entity.SeenItem {
	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}
	if published == nil || entry.Link == "" {
		return nil
	}

	// Content優先、なければDescriptionを使用
	content := entry.Content
	if content == "" {
		content = entry.Description
	}
	title := strings.TrimSpace(stripTags(entry.Title))
	if title == "" {
		title = untitled
	}

	return &entity.SeenItem{
		ItemType: "feed_item",
		ItemID:   entry.Link,
		Date:     *published,
		Data: map[string]any{
			"title":     title,
			"url":       entry.Link,
			"content":   stripTags(content),
			"published": published.UTC().Format(time.RFC3339),
		},
	}
}

// stripTags turns an HTML fragment into space-separated plain text.
func stripTags(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// DetailURL returns the feed URL itself; feeds have no per-item endpoint.
func (a *Feed) DetailURL(itemID string, _ poll.Options) (string, error) {
	return itemID, nil
}

// ParseDetail returns the first entry of the feed.
func (a *Feed) ParseDetail(body []byte) (*entity.SeenItem, error) {
	items, err := a.Parse(body, poll.FuncFind, poll.Options{})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// Details extracts feed-level metadata (title, description, site_url and
// feed_url) used to prefill a new feed interest.
func (a *Feed) Details(body []byte) (map[string]string, error) {
	feed, err := parseFeed(body)
	if err != nil {
		return nil, err
	}
	details := make(map[string]string)
	if t := strings.TrimSpace(stripTags(feed.Title)); t != "" {
		details["title"] = t
	}
	if d := strings.TrimSpace(stripTags(feed.Description)); d != "" {
		details["description"] = d
	}
	if feed.Link != "" {
		details["site_url"] = feed.Link
	}
	if feed.FeedLink != "" {
		details["feed_url"] = feed.FeedLink
	}
	return details, nil
}

// FetchDetails downloads the feed and returns its Details.
func (a *Feed) FetchDetails(ctx context.Context, feedURL string) (map[string]string, error) {
	body, err := a.FetchRaw(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return a.Details(body)
}

func (a *Feed) ShortName(n int) string {
	if n > 1 {
		return "results"
	}
	return "result"
}

func (a *Feed) InterestName(interest *entity.Interest) string {
	if title := interest.Data["title"]; title != "" {
		return title
	}
	return interest.In
}
