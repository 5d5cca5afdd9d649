package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/codeGROOVE-dev/channelist/match"
	"github.com/codeGROOVE-dev/channelist/proxy"
	"github.com/codeGROOVE-dev/channelist/record"
)

// fakeFetcher scripts search results per query text and counts calls.
type fakeFetcher struct {
	mu          sync.Mutex
	results     map[string][]match.Candidate
	pageTitles  map[string]string
	searchErr   error
	titleErr    error
	searchCalls int
	titleCalls  int
}

func (f *fakeFetcher) Search(_ context.Context, query string, platform record.Platform, _ *proxy.Entry) ([]match.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []match.Candidate
	for _, c := range f.results[query] {
		if c.Platform == platform {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeFetcher) PageTitle(_ context.Context, rawURL string, _ *proxy.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return f.pageTitles[rawURL], nil
}

func testRecord() record.Record {
	return record.Record{
		Username:    "epicgamer",
		ProfileName: "Epic Gamer",
		URL:         "https://twitter.com/epicgamer",
	}
}

func TestResolveEarlyExit(t *testing.T) {
	ytURL := "https://youtube.com/@epicgamer"
	twURL := "https://twitch.tv/epicgamer"
	fetcher := &fakeFetcher{
		results: map[string][]match.Candidate{
			"epicgamer": {
				{Platform: record.YouTube, URL: ytURL, Title: "epicgamer"},
				{Platform: record.Twitch, URL: twURL, Title: "epicgamer"},
			},
		},
		pageTitles: map[string]string{
			ytURL: "epicgamer - YouTube",
			twURL: "epicgamer - Twitch",
		},
	}

	res, err := New(fetcher).Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if res.YouTube.ChannelURL != ytURL || res.YouTube.Score != 100 {
		t.Errorf("YouTube = %+v, want %s at 100", res.YouTube, ytURL)
	}
	if res.Twitch.ChannelURL != twURL || res.Twitch.Score != 100 {
		t.Errorf("Twitch = %+v, want %s at 100", res.Twitch, twURL)
	}

	// The first query already cleared the threshold: one search and one
	// verification fetch per platform, nothing more. The record has
	// three distinct queries, so without the early exit this would be
	// six searches.
	if fetcher.searchCalls != 2 {
		t.Errorf("searchCalls = %d, want 2", fetcher.searchCalls)
	}
	if fetcher.titleCalls != 2 {
		t.Errorf("titleCalls = %d, want 2", fetcher.titleCalls)
	}
}

func TestResolveFallsThroughQueries(t *testing.T) {
	ytURL := "https://youtube.com/@epic"
	fetcher := &fakeFetcher{
		results: map[string][]match.Candidate{
			// Only the combined query surfaces anything useful.
			"epicgamer Epic Gamer": {
				{Platform: record.YouTube, URL: ytURL, Title: "Epic Gamer"},
			},
		},
		pageTitles: map[string]string{ytURL: "Epic Gamer - YouTube"},
	}

	res, err := New(fetcher).Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.YouTube.ChannelURL != ytURL {
		t.Errorf("YouTube URL = %q, want %q", res.YouTube.ChannelURL, ytURL)
	}
	if res.YouTube.Score != 100 {
		t.Errorf("YouTube score = %d, want 100", res.YouTube.Score)
	}
	if res.Twitch.ChannelURL != "" || res.Twitch.Score != 0 {
		t.Errorf("Twitch = %+v, want empty", res.Twitch)
	}
}

func TestResolveAllFetchesFail(t *testing.T) {
	fetcher := &fakeFetcher{searchErr: errors.New("connection refused")}

	res, err := New(fetcher).Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve with failing fetches: %v, want completed zero result", err)
	}
	if res.YouTube != (record.Match{}) || res.Twitch != (record.Match{}) {
		t.Errorf("result = %+v, want zero matches", res)
	}
	if fetcher.titleCalls != 0 {
		t.Errorf("titleCalls = %d with no candidates, want 0", fetcher.titleCalls)
	}
}

func TestResolveVerificationCapsScore(t *testing.T) {
	ytURL := "https://youtube.com/@impostor"
	fetcher := &fakeFetcher{
		results: map[string][]match.Candidate{
			"epicgamer": {
				{Platform: record.YouTube, URL: ytURL, Title: "epicgamer"},
			},
		},
		// The page turns out to belong to someone else entirely.
		pageTitles: map[string]string{ytURL: "Knitting Tutorials Weekly"},
	}

	res, err := New(fetcher).Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.YouTube.Score > 40 {
		t.Errorf("verified score = %d, want <= 40", res.YouTube.Score)
	}
	if res.YouTube.ChannelURL != ytURL {
		t.Errorf("URL = %q, want %q even when capped", res.YouTube.ChannelURL, ytURL)
	}
}

func TestResolveVerificationFailureKeepsScore(t *testing.T) {
	ytURL := "https://youtube.com/@epicgamer"
	fetcher := &fakeFetcher{
		results: map[string][]match.Candidate{
			"epicgamer": {
				{Platform: record.YouTube, URL: ytURL, Title: "epicgamer"},
			},
		},
		titleErr: errors.New("timeout"),
	}

	res, err := New(fetcher).Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.YouTube.Score != 100 {
		t.Errorf("score = %d after failed verification, want unverified 100", res.YouTube.Score)
	}
}

func TestResolveVerifiesBestCandidateOnly(t *testing.T) {
	best := "https://youtube.com/@epicgamer"
	fetcher := &fakeFetcher{
		results: map[string][]match.Candidate{
			"epicgamer": {
				{Platform: record.YouTube, URL: "https://youtube.com/@weak", Title: "vaguely epic"},
				{Platform: record.YouTube, URL: best, Title: "epicgamer"},
				{Platform: record.YouTube, URL: "https://youtube.com/@weak2", Title: "gamer stuff"},
			},
		},
		pageTitles: map[string]string{best: "epicgamer - YouTube"},
	}

	res, err := New(fetcher).Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.YouTube.ChannelURL != best {
		t.Errorf("chose %q, want %q", res.YouTube.ChannelURL, best)
	}
	if fetcher.titleCalls != 1 {
		t.Errorf("titleCalls = %d, want 1 (best candidate only)", fetcher.titleCalls)
	}
}

func TestResolveExhaustedPoolCompletesRecord(t *testing.T) {
	pool := proxy.New([]*proxy.Entry{{Address: "dead:1"}}, proxy.WithMaxRetries(1))
	e, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Report(e, false)

	fetcher := &fakeFetcher{}
	session := New(fetcher, WithProxyPool(pool))

	// Nothing can be fetched, but the record still completes with empty
	// matches; whether the run continues is the orchestrator's call.
	res, err := session.Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve with exhausted pool: %v", err)
	}
	if res.YouTube != (record.Match{}) || res.Twitch != (record.Match{}) {
		t.Errorf("result = %+v, want zero matches", res)
	}
	if fetcher.searchCalls != 0 {
		t.Errorf("searchCalls = %d with exhausted pool, want 0", fetcher.searchCalls)
	}
}

func TestResolveNoProxyDegradesWhenAllowed(t *testing.T) {
	pool := proxy.New([]*proxy.Entry{{Address: "dead:1"}}, proxy.WithMaxRetries(1))
	e, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Report(e, false)

	ytURL := "https://youtube.com/@epicgamer"
	fetcher := &fakeFetcher{
		results: map[string][]match.Candidate{
			"epicgamer": {{Platform: record.YouTube, URL: ytURL, Title: "epicgamer"}},
		},
		pageTitles: map[string]string{ytURL: "epicgamer - YouTube"},
	}

	session := New(fetcher, WithProxyPool(pool), WithAllowDirect(true))
	res, err := session.Resolve(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Resolve with allow-direct: %v", err)
	}
	if res.YouTube.ChannelURL != ytURL {
		t.Errorf("YouTube URL = %q, want %q", res.YouTube.ChannelURL, ytURL)
	}
}
