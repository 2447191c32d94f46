// Package fetcher pages through the deals collection of each pipeline with
// bounded retries, keeping whatever was accumulated when a page fails.
package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipedrive-export/internal/metrics"
	"github.com/sells-group/pipedrive-export/internal/model"
	"github.com/sells-group/pipedrive-export/internal/resilience"
	"github.com/sells-group/pipedrive-export/pkg/pipedrive"
)

// DefaultPageSize is the largest page the deals endpoint serves.
const DefaultPageSize = 500

// ErrOffsetNotAdvancing is reported when the server returns a next offset
// that would re-read the same page forever.
var ErrOffsetNotAdvancing = errors.New("fetcher: next offset does not advance")

// Result is the outcome of fetching one category. Records holds every
// record accumulated before the fetch stopped. Err explains an incomplete
// fetch and is informational: callers export partial results.
type Result struct {
	CategoryID int64
	Records    []model.Record
	Pages      int
	Skipped    int
	Complete   bool
	Err        error
}

// Fetcher retrieves deals page by page.
type Fetcher struct {
	client   pipedrive.Client
	keys     model.Keys
	pageSize int
	retry    resilience.RetryConfig
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPageSize sets the number of records requested per page.
func WithPageSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithRetry replaces the page retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(f *Fetcher) {
		f.retry = cfg
	}
}

// WithKeys sets the identity and category fields of a deal payload.
func WithKeys(k model.Keys) Option {
	return func(f *Fetcher) {
		f.keys = k
	}
}

// New creates a Fetcher. maxAttempts bounds the tries per page.
func New(client pipedrive.Client, maxAttempts int, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   client,
		keys:     model.DefaultKeys,
		pageSize: DefaultPageSize,
		retry:    resilience.PageRetryConfig(maxAttempts),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchCategory fetches every deal of one pipeline. It never returns an
// error value: failures end the loop and are reported in Result.Err.
func (f *Fetcher) FetchCategory(ctx context.Context, categoryID int64) Result {
	log := zap.L().With(zap.String("component", "fetcher"), zap.Int64("category", categoryID))
	res := Result{CategoryID: categoryID}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			res.Err = eris.Wrapf(err, "fetcher: category %d", categoryID)
			return res
		}

		page, outcome, err := Retry(ctx, f.retry, "list deals", func(ctx context.Context) (*pipedrive.DealsPage, error) {
			return f.client.ListDeals(ctx, categoryID, offset, f.pageSize)
		}, zap.Int64("category", categoryID), zap.Int("offset", offset))
		if err != nil {
			fields := []zap.Field{
				zap.Int("offset", offset),
				zap.Int("attempts", outcome.Attempts),
				zap.Int("kept", len(res.Records)),
				zap.String("class", string(resilience.Classify(err))),
				zap.Error(err),
			}
			if outcome.Exhausted {
				metrics.ObserveExhausted(pipedrive.EndpointDeals)
				log.Error("fetcher: page retries exhausted, keeping partial results", fields...)
			} else {
				log.Error("fetcher: page request failed, keeping partial results", fields...)
			}
			res.Err = eris.Wrapf(err, "fetcher: category %d offset %d", categoryID, offset)
			return res
		}

		res.Pages++
		for _, item := range page.Items {
			rec, err := model.NewRecord(item, f.keys)
			if err != nil {
				res.Skipped++
				log.Warn("fetcher: skipping record without usable id", zap.Int("offset", offset), zap.Error(err))
				continue
			}
			res.Records = append(res.Records, rec)
		}
		metrics.AddFetched(categoryID, len(page.Items))
		log.Info("fetcher: fetched page",
			zap.Int("offset", offset),
			zap.Int("page_records", len(page.Items)),
			zap.Int("total", len(res.Records)),
		)

		if !page.MoreItems || len(page.Items) == 0 {
			res.Complete = true
			return res
		}

		next := offset + len(page.Items)
		if page.NextStart != nil {
			next = *page.NextStart
		}
		if next <= offset {
			res.Err = eris.Wrapf(ErrOffsetNotAdvancing, "fetcher: category %d offset %d next %d", categoryID, offset, next)
			log.Error("fetcher: pagination stalled, keeping partial results", zap.Int("offset", offset), zap.Int("next", next))
			return res
		}
		offset = next
	}
}

// FetchAll fetches categories one after another in the given order and
// concatenates their records.
func (f *Fetcher) FetchAll(ctx context.Context, categoryIDs []int64) ([]model.Record, []Result) {
	var all []model.Record
	results := make([]Result, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		started := time.Now()
		res := f.FetchCategory(ctx, id)
		zap.L().Info("fetcher: category fetch finished",
			zap.String("component", "fetcher"),
			zap.Int64("category", id),
			zap.Int("records", len(res.Records)),
			zap.Int("pages", res.Pages),
			zap.Bool("complete", res.Complete),
			zap.Duration("elapsed", time.Since(started)),
		)
		all = append(all, res.Records...)
		results = append(results, res)
	}
	return all, results
}

// Retry calls fn under cfg. Transport failures and retryable HTTP statuses
// are retried; anything else ends the call on the first attempt.
func Retry[T any](ctx context.Context, cfg resilience.RetryConfig, operation string, fn func(ctx context.Context) (T, error), fields ...zap.Field) (T, resilience.Outcome, error) {
	cfg.ShouldRetry = isTransient
	logRetry := resilience.RetryLogger(operation, fields...)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.ObserveRetry(string(resilience.Classify(err)))
		logRetry(attempt, err, delay)
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err != nil {
			var zero T
			return zero, asTransient(err)
		}
		return v, nil
	})
}

// asTransient marks retryable client failures so the retry loop and the
// error classifier see them as transient.
func asTransient(err error) error {
	if pipedrive.IsRetryable(err) {
		return resilience.NewTransientError(err, pipedrive.StatusCode(err))
	}
	return err
}

func isTransient(err error) bool {
	var te *resilience.TransientError
	return errors.As(err, &te)
}

// Classify buckets a raw client error for request metrics.
func Classify(err error) resilience.Class {
	return resilience.Classify(asTransient(err))
}
