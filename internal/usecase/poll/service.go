package poll

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/observability/logging"
	"scout-alerts/internal/observability/metrics"
	"scout-alerts/internal/observability/tracing"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/report"
)

// DefaultBackfillWindow is how old an item may be and still be delivered.
const DefaultBackfillWindow = 30 * 24 * time.Hour

// Config holds poller settings. It is built once at startup.
type Config struct {
	// NoCache disables cache reads and writes.
	NoCache bool
	// BackfillWindow suppresses delivery of newly seen items dated before now-BackfillWindow.
	BackfillWindow time.Duration
	// Parallelism bounds concurrent subscriptions in CheckAll and InitializeAll.
	Parallelism int
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		BackfillWindow: DefaultBackfillWindow,
		Parallelism:    4,
	}
}

// Deps groups the collaborators of the poller.
type Deps struct {
	Registry      Registry
	Fetcher       Fetcher
	Cache         repository.CacheRepository
	SeenItems     repository.SeenItemRepository
	Subscriptions repository.SubscriptionRepository
	Interests     repository.InterestRepository
	Events        repository.ReportRepository
	Scheduler     Scheduler
	Followers     FollowerSource
	Reporter      report.Reporter
	Locker        Locker
}

// Service is the subscription poller.
type Service struct {
	registry      Registry
	fetcher       Fetcher
	cache         repository.CacheRepository
	seen          repository.SeenItemRepository
	subscriptions repository.SubscriptionRepository
	interests     repository.InterestRepository
	events        repository.ReportRepository
	scheduler     Scheduler
	followers     FollowerSource
	reporter      report.Reporter
	locker        Locker
	cfg           Config
	now           func() time.Time
}

// NewService creates a poller.
//
// Parameters:
//   - deps: repositories, registry and delivery collaborators (Followers and Locker may be nil)
//   - cfg: poller settings; zero values fall back to DefaultConfig
//
// Example:
//
//	svc := poll.NewService(poll.Deps{Registry: reg, Fetcher: f, ...}, poll.DefaultConfig())
//	result := svc.Poll(ctx, sub, poll.FuncSearch, poll.Options{CacheOnly: true})
func NewService(deps Deps, cfg Config) *Service {
	if cfg.BackfillWindow <= 0 {
		cfg.BackfillWindow = DefaultBackfillWindow
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Service{
		registry:      deps.Registry,
		fetcher:       deps.Fetcher,
		cache:         deps.Cache,
		seen:          deps.SeenItems,
		subscriptions: deps.Subscriptions,
		interests:     deps.Interests,
		events:        deps.Events,
		scheduler:     deps.Scheduler,
		followers:     deps.Followers,
		reporter:      deps.Reporter,
		locker:        deps.Locker,
		cfg:           cfg,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Poll runs one poll of sub. Errors never escape as panics; they come back
// in Result.Err, and unexpected ones are also reported to operators.
func (s *Service) Poll(ctx context.Context, sub *entity.Subscription, function string, opts Options) Result {
	ctx, span := tracing.Start(ctx, "poll.Poll",
		attribute.Int64("subscription.id", sub.ID),
		attribute.String("subscription.type", sub.SubscriptionType),
		attribute.String("poll.function", function),
	)
	defer span.End()

	adapter, ok := s.registry.Adapter(sub.SubscriptionType)
	if !ok {
		perr := &PollError{
			Kind:     KindUnexpected,
			Message:  fmt.Sprintf("no adapter for %q", sub.SubscriptionType),
			Function: function,
			Err:      ErrUnknownProvider,
		}
		s.reportUnexpected(ctx, sub, perr)
		return failed(perr)
	}

	var rawURL string
	err := safely(func() error {
		var err error
		rawURL, err = adapter.URL(sub, function, opts)
		return err
	})
	if err != nil {
		perr := newPollError(fmt.Errorf("build url: %w", err), "", function)
		s.reportUnexpected(ctx, sub, perr)
		return failed(perr)
	}

	result := s.run(ctx, adapter, rawURL, function, opts, func(body []byte) ([]*entity.SeenItem, error) {
		return adapter.Parse(body, function, opts)
	})
	if result.Err != nil {
		tracing.Fail(span, result.Err)
		if result.Err.Kind == KindUnexpected {
			s.reportUnexpected(ctx, sub, result.Err)
		}
		return result
	}

	for _, item := range result.Items {
		item.AssignTo(sub)
		item.SearchURL = logging.RedactURL(rawURL)
	}
	span.SetAttributes(attribute.Int("poll.items", len(result.Items)))
	return result
}

// Find looks up a single item by provider ID. Results are cached under the
// "find" function and honor CacheOnly.
func (s *Service) Find(ctx context.Context, subscriptionType, itemID string, opts Options) Result {
	adapter, ok := s.registry.Adapter(subscriptionType)
	if !ok {
		return failed(&PollError{Kind: KindUnexpected, Message: subscriptionType, Function: FuncFind, Err: ErrUnknownProvider})
	}
	finder, ok := adapter.(DetailFinder)
	if !ok {
		return failed(&PollError{Kind: KindUnexpected, Message: subscriptionType, Function: FuncFind, Err: ErrUnsupported})
	}

	rawURL, err := finder.DetailURL(itemID, opts)
	if err != nil {
		return failed(newPollError(fmt.Errorf("build url: %w", err), "", FuncFind))
	}

	result := s.run(ctx, adapter, rawURL, FuncFind, opts, func(body []byte) ([]*entity.SeenItem, error) {
		item, err := finder.ParseDetail(body)
		if err != nil || item == nil {
			return nil, err
		}
		return []*entity.SeenItem{item}, nil
	})
	if result.Err != nil {
		if result.Err.Kind == KindUnexpected {
			s.report(ctx, entity.NewExceptionReport("Find",
				fmt.Sprintf("Exception finding %s %s", subscriptionType, itemID),
				result.Err.Err,
				map[string]any{"url": logging.RedactURL(rawURL), "function": FuncFind}))
		}
		return result
	}
	for _, item := range result.Items {
		item.SubscriptionType = subscriptionType
		item.FindURL = logging.RedactURL(rawURL)
	}
	return result
}

// Sync runs a site-wide poll that is not bound to any subscription.
func (s *Service) Sync(ctx context.Context, subscriptionType string, opts Options) Result {
	adapter, ok := s.registry.Adapter(subscriptionType)
	if !ok {
		return failed(&PollError{Kind: KindUnexpected, Message: subscriptionType, Function: FuncSync, Err: ErrUnknownProvider})
	}
	builder, ok := adapter.(SyncURLBuilder)
	if !ok {
		return failed(&PollError{Kind: KindUnexpected, Message: subscriptionType, Function: FuncSync, Err: ErrUnsupported})
	}
	rawURL, err := builder.SyncURL(opts)
	if err != nil {
		return failed(newPollError(fmt.Errorf("build url: %w", err), "", FuncSync))
	}

	result := s.run(ctx, adapter, rawURL, FuncSync, opts, func(body []byte) ([]*entity.SeenItem, error) {
		return adapter.Parse(body, FuncSync, opts)
	})
	if result.Err != nil {
		if result.Err.Kind == KindUnexpected {
			s.report(ctx, entity.NewExceptionReport("Sync",
				fmt.Sprintf("Exception syncing %s", subscriptionType),
				result.Err.Err,
				map[string]any{"url": logging.RedactURL(rawURL), "function": FuncSync}))
		}
		return result
	}
	for _, item := range result.Items {
		item.SubscriptionType = subscriptionType
	}
	return result
}

// run resolves the body (cache or network), parses it and classifies failures.
func (s *Service) run(
	ctx context.Context,
	adapter Adapter,
	rawURL, function string,
	opts Options,
	parse func([]byte) ([]*entity.SeenItem, error),
) Result {
	logger := slog.Default()
	start := time.Now()
	typ := adapter.Type()
	cacheable := (function == FuncSearch || function == FuncFind) && !s.cfg.NoCache && s.cache != nil

	var body []byte
	cached := false
	if cacheable {
		content, found, err := s.cache.Get(ctx, rawURL, function, typ)
		if err != nil {
			logger.Warn("cache read failed",
				slog.String("subscription_type", typ),
				slog.String("url", logging.RedactURL(rawURL)),
				slog.Any("error", err))
		} else if found {
			body = []byte(content)
			cached = true
		}
		metrics.RecordCacheLookup(typ, cached)
	}

	if !cached {
		if opts.CacheOnly {
			metrics.RecordPoll(typ, function, metrics.OutcomeCacheMiss, time.Since(start))
			return Result{Miss: true, URL: rawURL}
		}
		err := safely(func() error {
			var err error
			body, err = s.download(ctx, adapter, rawURL)
			return err
		})
		if err != nil {
			return s.fail(typ, function, rawURL, err, start)
		}
	}

	var items []*entity.SeenItem
	err := safely(func() error {
		var err error
		items, err = parse(body)
		return err
	})
	if err != nil {
		return s.fail(typ, function, rawURL, err, start)
	}

	// 正常にパースできた応答のみキャッシュする
	if cacheable && !cached {
		if err := s.cache.Put(ctx, rawURL, function, typ, string(body)); err != nil {
			logger.Warn("cache write failed",
				slog.String("subscription_type", typ),
				slog.String("url", logging.RedactURL(rawURL)),
				slog.Any("error", err))
		}
	}

	metrics.RecordPoll(typ, function, metrics.OutcomeSuccess, time.Since(start))
	return Result{Items: items, Cached: cached, URL: rawURL}
}

func (s *Service) download(ctx context.Context, adapter Adapter, rawURL string) ([]byte, error) {
	if rf, ok := adapter.(RawFetcher); ok {
		return rf.FetchRaw(ctx, rawURL)
	}
	var customize func(*http.Request)
	if hc, ok := adapter.(HTTPCustomizer); ok {
		customize = hc.CustomizeRequest
	}
	return s.fetcher.Fetch(ctx, rawURL, customize)
}

func (s *Service) fail(typ, function, rawURL string, err error, start time.Time) Result {
	perr := newPollError(err, rawURL, function)
	metrics.RecordPoll(typ, function, string(perr.Kind), time.Since(start))

	attrs := []any{
		slog.String("subscription_type", typ),
		slog.String("function", function),
		slog.String("url", logging.RedactURL(rawURL)),
		slog.String("kind", string(perr.Kind)),
		slog.String("error", logging.RedactError(err)),
	}
	if pe, ok := err.(*panicError); ok {
		attrs = append(attrs, slog.String("stack", string(pe.stack)))
	}
	slog.Default().Warn("poll failed", attrs...)
	return failed(perr)
}

func (s *Service) reportUnexpected(ctx context.Context, sub *entity.Subscription, perr *PollError) {
	s.report(ctx, entity.NewExceptionReport("Poll",
		fmt.Sprintf("Exception polling %s subscription", sub.SubscriptionType),
		perr.Err,
		map[string]any{
			"subscription_id": sub.ID,
			"interest_id":     sub.InterestID,
			"url":             perr.URL,
			"function":        perr.Function,
		}))
}

func (s *Service) report(ctx context.Context, r *entity.Report) {
	if s.reporter == nil {
		slog.Default().Warn("operator report", slog.String("report", r.String()))
		return
	}
	s.reporter.Report(ctx, r)
}
