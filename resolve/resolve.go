// Package resolve runs the per-record resolution session: try each
// planned query in order against each platform, score the candidates,
// exit early on a confident hit, and verify the winner with one page
// fetch. A session is transient state; the only durable output is the
// record.Result it returns.
package resolve

import (
	"context"
	"log/slog"

	"github.com/codeGROOVE-dev/channelist/match"
	"github.com/codeGROOVE-dev/channelist/proxy"
	"github.com/codeGROOVE-dev/channelist/queryplan"
	"github.com/codeGROOVE-dev/channelist/record"
	"github.com/codeGROOVE-dev/channelist/search"
)

// Session resolves records to channel matches.
type Session struct {
	fetcher     search.Fetcher
	pool        *proxy.Pool
	scorer      *match.Scorer
	threshold   int
	allowDirect bool
	logger      *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithProxyPool routes fetches through the pool. A nil or empty pool
// means direct requests.
func WithProxyPool(pool *proxy.Pool) Option {
	return func(s *Session) { s.pool = pool }
}

// WithScorer replaces the default scorer.
func WithScorer(scorer *match.Scorer) Option {
	return func(s *Session) { s.scorer = scorer }
}

// WithThreshold sets the early-exit confidence threshold.
func WithThreshold(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithAllowDirect permits direct (unproxied) fetches once the pool is
// exhausted, instead of skipping the remaining fetches.
func WithAllowDirect(allow bool) Option {
	return func(s *Session) { s.allowDirect = allow }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New creates a Session around a fetcher.
func New(fetcher search.Fetcher, opts ...Option) *Session {
	s := &Session{
		fetcher:   fetcher,
		scorer:    match.NewScorer(),
		threshold: match.DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve finds the best channel match on every platform for one record.
// Fetch failures degrade to "no candidates from this query" and the
// session moves on; a record whose every fetch failed still completes,
// with empty matches. Proxy exhaustion mid-record is the same shape:
// the session finishes with whatever it has already fetched, and the
// caller decides whether the run continues.
func (s *Session) Resolve(ctx context.Context, rec record.Record) (record.Result, error) {
	queries := queryplan.BuildQueries(rec)
	refs := queryplan.ReferenceNames(rec)
	res := record.Result{Record: rec}

	for _, platform := range record.Platforms {
		m, err := s.resolvePlatform(ctx, queries, refs, platform)
		if err != nil {
			return res, err
		}
		res.SetMatch(platform, m)
	}
	return res, nil
}

// resolvePlatform walks the query ladder for one platform. Ties keep
// the earlier candidate: with equal scores, the earlier query source
// and the higher search ranking are both better signals.
func (s *Session) resolvePlatform(ctx context.Context, queries []queryplan.Query, refs []string, platform record.Platform) (record.Match, error) {
	var best match.Candidate
	bestScore := 0

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return record.Match{}, err
		}

		cands, ok := s.searchOnce(ctx, q, platform)
		if !ok {
			break // no way to fetch anymore; keep what we have
		}

		for _, c := range cands {
			if sc := s.scorer.Score(c, refs); sc > bestScore {
				best, bestScore = c, sc
			}
		}
		if bestScore >= s.threshold {
			s.logger.DebugContext(ctx, "early exit",
				"platform", platform, "source", q.Source, "score", bestScore)
			break
		}
	}

	if best.URL == "" {
		return record.Match{}, nil
	}

	return s.verify(ctx, best, bestScore, refs), nil
}

// verify fetches the winning candidate's page title and re-scores with
// it. A title mentioning a reference name leaves the score unchanged; a
// title mentioning none of them caps it. One fetch per platform, best
// candidate only; when the fetch fails or cannot be proxied, the
// unverified score stands.
func (s *Session) verify(ctx context.Context, best match.Candidate, bestScore int, refs []string) record.Match {
	px, direct, ok := s.acquire()
	if !ok {
		return record.Match{ChannelURL: best.URL, Score: bestScore}
	}

	title, err := s.fetcher.PageTitle(ctx, best.URL, px)
	if !direct {
		s.pool.Report(px, err == nil)
	}
	if err != nil {
		s.logger.DebugContext(ctx, "verification fetch failed",
			"url", best.URL, "error", err)
		return record.Match{ChannelURL: best.URL, Score: bestScore}
	}

	best.PageTitle = title
	verified := s.scorer.Score(best, refs)
	if verified != bestScore {
		s.logger.DebugContext(ctx, "verification adjusted score",
			"url", best.URL, "unverified", bestScore, "verified", verified)
	}
	return record.Match{ChannelURL: best.URL, Score: verified}
}

// searchOnce runs one query. A fetch failure is "no candidates from
// this query" (ok stays true); ok is false only when nothing can be
// fetched at all because every proxy is disabled.
func (s *Session) searchOnce(ctx context.Context, q queryplan.Query, platform record.Platform) (cands []match.Candidate, ok bool) {
	px, direct, ok := s.acquire()
	if !ok {
		return nil, false
	}

	cands, err := s.fetcher.Search(ctx, q.Text, platform, px)
	if !direct {
		s.pool.Report(px, err == nil)
	}
	if err != nil {
		s.logger.DebugContext(ctx, "query failed",
			"query", q.Text, "source", q.Source, "platform", platform, "error", err)
		return nil, true
	}
	return cands, true
}

// acquire picks the next proxy. A nil entry with direct=true means an
// unproxied request (no pool configured, or exhaustion with degradation
// allowed). ok=false means the pool is exhausted and direct requests
// are not permitted.
func (s *Session) acquire() (px *proxy.Entry, direct, ok bool) {
	if s.pool == nil || s.pool.Size() == 0 {
		return nil, true, true
	}
	px, err := s.pool.Acquire()
	if err != nil {
		if s.allowDirect {
			return nil, true, true
		}
		return nil, false, false
	}
	return px, false, true
}
