package portal

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/fonfetch/cache"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/scraper"
	"golang.org/x/sync/singleflight"
)

const keyDate = "2006-01-02"

// CachedFetcher serves repeated acquisitions from a payload cache and
// collapses concurrent identical ones into a single browser session.
// Failures are never cached.
type CachedFetcher struct {
	next    Fetcher
	cache   *cache.Cache
	timeout time.Duration
	group   singleflight.Group
}

// NewCachedFetcher wraps next with c. A shared acquisition is detached from
// the caller that started it and bounded by timeout instead; 0 leaves it
// unbounded.
func NewCachedFetcher(next Fetcher, c *cache.Cache, timeout time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, cache: c, timeout: timeout}
}

// FetchFundReturns implements Fetcher.
func (f *CachedFetcher) FetchFundReturns(ctx context.Context, q models.Query) (models.Payload, error) {
	key := cache.Key("returns", q.FundCode, q.Start.Format(keyDate), q.End.Format(keyDate),
		q.WorkingType, q.FundType, q.SubFundType, q.FounderCode, q.FundGroup,
		q.FundTypeCode, q.TitleType, q.Period, q.TradingStatus)
	return f.fetch(ctx, key, func(ctx context.Context) (models.Payload, error) {
		return f.next.FetchFundReturns(ctx, q)
	})
}

// FetchHistoricalNav implements Fetcher.
func (f *CachedFetcher) FetchHistoricalNav(ctx context.Context, code string, start, end time.Time) (models.Payload, error) {
	key := cache.Key("nav", code, start.Format(keyDate), end.Format(keyDate))
	return f.fetch(ctx, key, func(ctx context.Context) (models.Payload, error) {
		return f.next.FetchHistoricalNav(ctx, code, start, end)
	})
}

// FetchFundPerformance implements Fetcher. The comparison covers every
// fund, so the key ignores code.
func (f *CachedFetcher) FetchFundPerformance(ctx context.Context, code string, start, end time.Time) (models.Payload, error) {
	key := cache.Key("performance", start.Format(keyDate), end.Format(keyDate))
	return f.fetch(ctx, key, func(ctx context.Context) (models.Payload, error) {
		return f.next.FetchFundPerformance(ctx, code, start, end)
	})
}

// fetch serves key from the cache or joins the acquisition in flight for
// it. Each caller waits on its own ctx; one caller leaving does not cut the
// acquisition short for the others.
func (f *CachedFetcher) fetch(ctx context.Context, key string, load func(context.Context) (models.Payload, error)) (models.Payload, error) {
	if p, ok := f.cache.Get(key); ok {
		slog.Debug("payload cache hit", "key", key[:12], "source", p.Source)
		return p, nil
	}

	budget := scraper.Budget(ctx, f.timeout)
	ch := f.group.DoChan(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		if f.timeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, f.timeout)
			defer cancel()
		}
		p, err := load(loadCtx)
		if err != nil {
			return models.Payload{}, err
		}
		f.cache.Set(key, p)
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("acquisition shared with a concurrent request", "key", key[:12])
		}
		if res.Err != nil {
			return models.Payload{}, res.Err
		}
		return res.Val.(models.Payload), nil
	case <-ctx.Done():
		slog.Debug("caller left a shared acquisition", "key", key[:12], "error", ctx.Err())
		return models.Payload{}, Classify("fetch", ctx.Err(), "", budget)
	}
}
