// Package proxy tracks a rotating set of outbound proxies shared by all
// workers. Rotation is round-robin over enabled entries; an entry that
// accumulates enough consecutive failures is disabled for the rest of
// the run and never handed out again.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"strings"
	"sync"
)

// DefaultMaxRetries is the consecutive-failure count at which an entry
// is permanently disabled.
const DefaultMaxRetries = 3

// ErrNoneAvailable is returned by Acquire when every entry is disabled
// (or the pool is empty). New requests cannot be proxied; in-flight work
// completes with whatever it has fetched.
var ErrNoneAvailable = errors.New("no proxy available")

// Entry is one proxy. Its mutable fields are guarded by the owning
// Pool's mutex; callers treat an Entry handed out by Acquire as
// read-only and feed outcomes back through Report.
type Entry struct {
	Address  string
	Protocol string

	failures int
	disabled bool
}

// URL returns the proxy as a *url.URL suitable for http.Transport.Proxy.
func (e *Entry) URL() (*url.URL, error) {
	proto := e.Protocol
	if proto == "" {
		proto = "http"
	}
	return url.Parse(proto + "://" + e.Address)
}

func (e *Entry) String() string {
	proto := e.Protocol
	if proto == "" {
		proto = "http"
	}
	return proto + "://" + e.Address
}

// Pool is a concurrency-safe rotating proxy pool. When the pool is
// smaller than the worker count, entries are legitimately shared;
// serialization is the caller's responsibility via per-request timeouts,
// not mutual exclusion.
type Pool struct {
	mu         sync.Mutex
	entries    []*Entry
	next       int
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxRetries sets the consecutive-failure disable threshold.
func WithMaxRetries(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New creates a Pool over the given entries. Entries are shuffled once
// so repeated runs do not hammer the list head.
func New(entries []*Entry, opts ...Option) *Pool {
	p := &Pool{
		entries:    entries,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	rand.Shuffle(len(p.entries), func(i, j int) {
		p.entries[i], p.entries[j] = p.entries[j], p.entries[i]
	})
	return p
}

// Load reads proxy entries from r, one per line. Accepted forms:
//
//	host:port
//	protocol://host:port
//	address,protocol      (CSV)
//
// Blank lines and #-comments are skipped.
func Load(r io.Reader) ([]*Entry, error) {
	var entries []*Entry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.ReplaceAll(text, " ", ""), "address,protocol") {
			continue // CSV header
		}

		addr, proto := text, "http"
		if i := strings.Index(text, "://"); i >= 0 {
			proto, addr = text[:i], text[i+3:]
		} else if i := strings.Index(text, ","); i >= 0 {
			addr = strings.TrimSpace(text[:i])
			if p := strings.TrimSpace(text[i+1:]); p != "" {
				proto = p
			}
		}
		if addr == "" {
			return nil, fmt.Errorf("line %d: empty proxy address", line)
		}
		entries = append(entries, &Entry{Address: addr, Protocol: proto})
	}
	return entries, sc.Err()
}

// LoadFile is Load over a file path.
func LoadFile(path string) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	return Load(f)
}

// Acquire returns the next enabled proxy in rotation, or ErrNoneAvailable
// when every entry is disabled. Safe for concurrent callers.
func (p *Pool) Acquire() (*Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	for range n {
		e := p.entries[p.next%n]
		p.next = (p.next + 1) % n
		if !e.disabled {
			return e, nil
		}
	}
	return nil, ErrNoneAvailable
}

// Report feeds back the outcome of one request made through the entry.
// A success resets the consecutive-failure count; a failure increments
// it, disabling the entry for the rest of the run once it reaches the
// threshold. Disabled entries never re-enable.
func (p *Pool) Report(e *Entry, success bool) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if success {
		e.failures = 0
		return
	}
	if e.disabled {
		return
	}
	e.failures++
	if e.failures >= p.maxRetries {
		e.disabled = true
		p.logger.Warn("proxy disabled after repeated failures",
			"proxy", e.String(), "failures", e.failures)
	}
}

// Exhausted reports whether every entry is disabled. An empty pool is
// not exhausted; it means the run was configured without proxies.
func (p *Pool) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return false
	}
	for _, e := range p.entries {
		if !e.disabled {
			return false
		}
	}
	return true
}

// Size returns the total number of entries.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Disabled returns how many entries have been disabled this run.
func (p *Pool) Disabled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.disabled {
			n++
		}
	}
	return n
}
