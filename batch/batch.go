// Package batch orchestrates a resolution run: it fans records out to a
// fixed set of workers, spaces their network work with randomized
// politeness delays, survives per-record panics, and persists every
// completed result immediately so an interrupted run resumes where it
// stopped.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/channelist/match"
	"github.com/codeGROOVE-dev/channelist/proxy"
	"github.com/codeGROOVE-dev/channelist/record"
)

// Default politeness parameters.
const (
	DefaultWorkers        = 3
	DefaultBatchSize      = 10
	DefaultSearchDelayMin = 2 * time.Second
	DefaultSearchDelayMax = 4 * time.Second
	DefaultBatchDelayMin  = 1 * time.Second
	DefaultBatchDelayMax  = 3 * time.Second
)

// ErrProxiesExhausted halts a run configured to stop once every proxy
// is disabled. The record that observed the exhaustion still completes
// and persists; only remaining dispatch stops.
var ErrProxiesExhausted = errors.New("all proxies exhausted")

// Resolver resolves one record to its channel matches.
type Resolver interface {
	Resolve(ctx context.Context, rec record.Record) (record.Result, error)
}

// Summary describes what one run did.
type Summary struct {
	Total          int
	AlreadyDone    int
	Processed      int
	YouTubeMatched int
	TwitchMatched  int
	Failed         int
	ProxiesTotal   int
	ProxiesDown    int
	Elapsed        time.Duration
}

// Runner executes a batch of records against a resolver.
type Runner struct {
	resolver         Resolver
	store            *record.Store
	pool             *proxy.Pool
	haltOnExhaustion bool
	workers          int
	batchSize        int
	threshold        int

	searchDelayMin time.Duration
	searchDelayMax time.Duration
	batchDelayMin  time.Duration
	batchDelayMax  time.Duration

	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the concurrent worker count, clamped to [1,10].
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		if n > 10 {
			n = 10
		}
		r.workers = n
	}
}

// WithBatchSize sets how many records a worker completes between batch
// pauses.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithThreshold sets the score at which a result counts as matched in
// the summary.
func WithThreshold(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithSearchDelay sets the randomized per-record delay range.
func WithSearchDelay(minDelay, maxDelay time.Duration) Option {
	return func(r *Runner) {
		if minDelay >= 0 && maxDelay >= minDelay {
			r.searchDelayMin, r.searchDelayMax = minDelay, maxDelay
		}
	}
}

// WithBatchDelay sets the randomized per-batch delay range.
func WithBatchDelay(minDelay, maxDelay time.Duration) Option {
	return func(r *Runner) {
		if minDelay >= 0 && maxDelay >= minDelay {
			r.batchDelayMin, r.batchDelayMax = minDelay, maxDelay
		}
	}
}

// WithProxyPool attaches the pool for exhaustion checks and summary
// reporting.
func WithProxyPool(pool *proxy.Pool) Option {
	return func(r *Runner) { r.pool = pool }
}

// WithHaltOnExhaustion stops dispatching new records once every proxy
// is disabled, instead of letting sessions degrade to direct requests.
func WithHaltOnExhaustion(halt bool) Option {
	return func(r *Runner) { r.haltOnExhaustion = halt }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner writing results to store.
func New(resolver Resolver, store *record.Store, opts ...Option) *Runner {
	r := &Runner{
		resolver:       resolver,
		store:          store,
		workers:        DefaultWorkers,
		batchSize:      DefaultBatchSize,
		threshold:      match.DefaultThreshold,
		searchDelayMin: DefaultSearchDelayMin,
		searchDelayMax: DefaultSearchDelayMax,
		batchDelayMin:  DefaultBatchDelayMin,
		batchDelayMax:  DefaultBatchDelayMax,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes all records not already present in the results store.
// Records are assigned to workers by static round-robin, so a record's
// worker does not depend on timing. Cancelling ctx is a cooperative
// stop: each worker finishes the record it is on, persists it, and
// exits; Run then returns ctx's error.
func (r *Runner) Run(ctx context.Context, records []record.Record) (Summary, error) {
	start := time.Now()
	sum := Summary{Total: len(records)}

	var pending []record.Record
	for _, rec := range records {
		if r.store.Done(rec.Key()) {
			sum.AlreadyDone++
			continue
		}
		pending = append(pending, rec)
	}
	r.logger.Info("starting run",
		"records", len(records), "pending", len(pending),
		"already_done", sum.AlreadyDone, "workers", r.workers)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for w := range r.workers {
		var assigned []record.Record
		for i := w; i < len(pending); i += r.workers {
			assigned = append(assigned, pending[i])
		}
		if len(assigned) == 0 {
			continue
		}
		wg.Add(1)
		go func(worker int, recs []record.Record) {
			defer wg.Done()
			r.runWorker(runCtx, cancel, worker, recs, &sum, &mu)
		}(w, assigned)
	}
	wg.Wait()

	sum.Elapsed = time.Since(start)
	if r.pool != nil {
		sum.ProxiesTotal = r.pool.Size()
		sum.ProxiesDown = r.pool.Disabled()
	}

	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return sum, cause
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// runWorker processes one worker's record slice in order. In-flight
// records run on a context detached from the stop signal, so a stop
// request never abandons a half-resolved record; the per-request
// timeout still bounds how long "finishing" can take.
func (r *Runner) runWorker(ctx context.Context, cancel context.CancelCauseFunc, worker int, recs []record.Record, sum *Summary, mu *sync.Mutex) {
	logger := r.logger.With("worker", worker)
	completed := 0

	for i, rec := range recs {
		if ctx.Err() != nil {
			logger.Info("stopping", "remaining", len(recs)-i)
			return
		}

		res, err := r.resolveOne(context.WithoutCancel(ctx), rec)
		if err != nil {
			logger.Warn("record failed", "username", rec.Key(), "error", err)
			mu.Lock()
			sum.Failed++
			mu.Unlock()
			res = record.Result{Record: rec}
		}

		if err := r.store.Append(res); err != nil {
			logger.Error("persist failed", "username", rec.Key(), "error", err)
			cancel(fmt.Errorf("persist %s: %w", rec.Key(), err))
			return
		}
		completed++
		mu.Lock()
		sum.Processed++
		if res.YouTube.Score >= r.threshold {
			sum.YouTubeMatched++
		}
		if res.Twitch.Score >= r.threshold {
			sum.TwitchMatched++
		}
		mu.Unlock()
		logger.Info("record done", "username", rec.Key(),
			"youtube", res.YouTube.ChannelURL, "youtube_score", res.YouTube.Score,
			"twitch", res.Twitch.ChannelURL, "twitch_score", res.Twitch.Score)

		if r.haltOnExhaustion && r.pool != nil && r.pool.Exhausted() {
			logger.Error("halting run, every proxy disabled")
			cancel(ErrProxiesExhausted)
			return
		}

		if i == len(recs)-1 {
			break // no pause after the last record
		}
		if completed%r.batchSize == 0 {
			if !sleepRand(ctx, r.batchDelayMin, r.batchDelayMax) {
				continue // stop requested; loop head handles it
			}
		}
		if !sleepRand(ctx, r.searchDelayMin, r.searchDelayMax) {
			continue
		}
	}
}

// resolveOne runs the resolver with panic isolation: a panicking record
// is reported as a failure and the worker moves on, so one poisoned
// input cannot take down a long run.
func (r *Runner) resolveOne(ctx context.Context, rec record.Record) (res record.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic resolving record",
				"username", rec.Key(), "panic", p, "stack", string(debug.Stack()))
			res = record.Result{Record: rec}
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.resolver.Resolve(ctx, rec)
}

// sleepRand pauses for a uniform random duration in [minDelay, maxDelay],
// returning false if ctx was cancelled first.
func sleepRand(ctx context.Context, minDelay, maxDelay time.Duration) bool {
	d := minDelay
	if span := maxDelay - minDelay; span > 0 {
		d += rand.N(span)
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
