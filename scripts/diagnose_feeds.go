// diagnose_feeds fetches every feed subscription in DATABASE_URL once and
// reports which feeds are broken, empty or slow.
//
// Usage: go run ./scripts/diagnose_feeds.go [-timeout 10s] [-json report.json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/adapter/persistence/postgres"
	"scout-alerts/internal/infra/db"
	"scout-alerts/internal/infra/provider"
	"scout-alerts/internal/observability/logging"
	"scout-alerts/internal/usecase/poll"
)

// FeedDiagnostic is the result for a single feed URL.
type FeedDiagnostic struct {
	URL           string `json:"url"`
	Subscriptions int    `json:"subscriptions"`
	Status        string `json:"status"` // "OK", "EMPTY", "FETCH_ERROR", "PARSE_ERROR"
	Title         string `json:"title,omitempty"`
	ItemCount     int    `json:"item_count"`
	LatestDate    string `json:"latest_date,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ResponseTime  int64  `json:"response_time_ms"`
}

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "per-feed download timeout")
	jsonPath := flag.String("json", "", "also write the report as JSON to this path")
	flag.Parse()

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	ctx := context.Background()
	database, err := db.Open(ctx)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	urls, err := feedURLs(ctx, postgres.NewSubscriptionRepo(database))
	if err != nil {
		logger.Error("failed to list feed subscriptions", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("Diagnosing %d feeds...\n\n", len(urls))

	adapter := provider.NewFeed(*timeout, 5<<20, true)
	keys := make([]string, 0, len(urls))
	for u := range urls {
		keys = append(keys, u)
	}
	sort.Strings(keys)

	diagnostics := make([]FeedDiagnostic, 0, len(keys))
	for _, u := range keys {
		d := diagnoseFeed(ctx, adapter, u)
		d.Subscriptions = urls[u]
		diagnostics = append(diagnostics, d)
	}

	generateReport(diagnostics)
	if *jsonPath != "" {
		if err := generateJSONReport(*jsonPath, diagnostics); err != nil {
			logger.Error("failed to write json report", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("\nJSON report written to %s\n", *jsonPath)
	}
}

// feedURLs counts feed subscriptions per URL, initialized or not.
func feedURLs(ctx context.Context, subs interface {
	ListInitialized(ctx context.Context) ([]*entity.Subscription, error)
	ListUninitialized(ctx context.Context) ([]*entity.Subscription, error)
}) (map[string]int, error) {
	initialized, err := subs.ListInitialized(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := subs.ListUninitialized(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, s := range append(initialized, pending...) {
		if s.SubscriptionType == provider.TypeFeed && s.InterestIn != "" {
			out[s.InterestIn]++
		}
	}
	return out, nil
}

func diagnoseFeed(ctx context.Context, adapter *provider.Feed, feedURL string) FeedDiagnostic {
	d := FeedDiagnostic{URL: logging.RedactURL(feedURL)}

	start := time.Now()
	body, err := adapter.FetchRaw(ctx, feedURL)
	d.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		d.Status = "FETCH_ERROR"
		d.ErrorMessage = logging.RedactError(err)
		return d
	}

	items, err := adapter.Parse(body, "", poll.Options{})
	if err != nil {
		d.Status = "PARSE_ERROR"
		d.ErrorMessage = logging.RedactError(err)
		return d
	}
	if details, err := adapter.Details(body); err == nil {
		d.Title = details["title"]
	}

	d.ItemCount = len(items)
	if d.ItemCount == 0 {
		d.Status = "EMPTY"
		return d
	}
	d.Status = "OK"

	var latest time.Time
	for _, item := range items {
		if item.Date.After(latest) {
			latest = item.Date
		}
	}
	if !latest.IsZero() {
		d.LatestDate = latest.Format("2006-01-02")
	}
	return d
}

func generateReport(diagnostics []FeedDiagnostic) {
	counts := make(map[string]int)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STATUS\tSUBS\tITEMS\tLATEST\tMS\tURL\tERROR")
	for _, d := range diagnostics {
		counts[d.Status]++
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			d.Status, d.Subscriptions, d.ItemCount, d.LatestDate, d.ResponseTime, d.URL, d.ErrorMessage)
	}
	_ = tw.Flush()

	fmt.Println()
	fmt.Printf("OK: %d  EMPTY: %d  FETCH_ERROR: %d  PARSE_ERROR: %d\n",
		counts["OK"], counts["EMPTY"], counts["FETCH_ERROR"], counts["PARSE_ERROR"])
}

func generateJSONReport(path string, diagnostics []FeedDiagnostic) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(diagnostics)
}
