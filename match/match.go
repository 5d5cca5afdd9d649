// Package match scores candidate channels against a record's reference
// names. Scoring is pure string math: deterministic, no I/O, always in
// [0,100]. Heuristics are tried as an ordered list of small pure
// functions combined by max-reduction, not summed, so near-duplicate
// signals never double-count.
package match

import (
	"math"
	"strings"
	"unicode"

	"github.com/codeGROOVE-dev/channelist/record"
)

// DefaultThreshold is the score at or above which a candidate counts as
// a match for orchestration purposes.
const DefaultThreshold = 50

// Heuristic weights and limits.
const (
	scoreExact       = 100
	scoreNearExact   = 90
	containmentMax   = 80
	containmentFloor = 40
	overlapMax       = 75
	abbreviationHit  = 65
	verificationCap  = 40
)

// Candidate is one search hit or page-title fetch result, scored within
// a single session and then discarded. PageTitle holds the destination
// page's title when it has been fetched for verification; empty means
// not yet verified.
type Candidate struct {
	Platform  record.Platform
	URL       string
	Title     string
	PageTitle string
}

// Abbreviation maps a multi-word expansion to its short form, e.g.
// "new york" -> "ny". The table is injectable data, not scorer logic,
// so it can grow without touching the heuristics.
type Abbreviation struct {
	Expansion string
	Short     string
}

// DefaultAbbreviations is the stock abbreviation table.
var DefaultAbbreviations = []Abbreviation{
	{"new york", "ny"},
	{"los angeles", "la"},
	{"san francisco", "sf"},
	{"united kingdom", "uk"},
	{"official channel", "official"},
	{"the original", "og"},
	{"versus", "vs"},
	{"brothers", "bros"},
	{"television", "tv"},
}

// Scorer computes match confidence for candidates.
type Scorer struct {
	abbrevs []Abbreviation
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithAbbreviations replaces the abbreviation table.
func WithAbbreviations(abbrevs []Abbreviation) Option {
	return func(s *Scorer) { s.abbrevs = abbrevs }
}

// NewScorer creates a Scorer with the default abbreviation table.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{abbrevs: DefaultAbbreviations}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the 0-100 confidence that the candidate is the correct
// channel for the given reference names. The result is the maximum over
// all heuristics and all reference names. When the candidate carries a
// fetched PageTitle containing none of the reference-name tokens, the
// combined score is capped at 40: search engines sometimes rank a wrong
// channel highly on URL and metadata alone.
func (s *Scorer) Score(c Candidate, refs []string) int {
	title := normalize(c.Title)
	if title == "" || len(refs) == 0 {
		return 0
	}

	heuristics := []func(title, ref string) int{
		exactScore,
		containmentScore,
		overlapScore,
		s.abbreviationScore,
	}

	best := 0
	for _, ref := range refs {
		nref := normalize(ref)
		if nref == "" {
			continue
		}
		for _, h := range heuristics {
			if sc := h(title, nref); sc > best {
				best = sc
			}
		}
	}

	if c.PageTitle != "" && !titleMentionsAny(c.PageTitle, refs) && best > verificationCap {
		best = verificationCap
	}

	return clamp(best)
}

// exactScore handles full and near-exact title equality: normalized
// equality is 100, equality with only spacing differences is 90.
func exactScore(title, ref string) int {
	if title == ref {
		return scoreExact
	}
	if squash(title) == squash(ref) {
		return scoreNearExact
	}
	return 0
}

// containmentScore scores substring containment either way, scaled by
// the length ratio of the shorter to the longer string. Ratios scoring
// below the floor are noise and discarded.
func containmentScore(title, ref string) int {
	shorter, longer := title, ref
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 3 || !strings.Contains(longer, shorter) {
		return 0
	}
	sc := int(math.Round(containmentMax * float64(len(shorter)) / float64(len(longer))))
	if sc < containmentFloor {
		return 0
	}
	return sc
}

// overlapScore is a Dice-style word overlap: matched tokens counted on
// both sides over total tokens on both sides. Token matching allows
// substring containment for tokens of 5+ runes, so handles that fuse
// words ("kirstnicolexo") still overlap their parts. Reference names
// fully covered by candidate words score well even when the candidate
// appends suffixes like "Official" or "VEVO".
func overlapScore(title, ref string) int {
	ct := strings.Fields(title)
	rt := strings.Fields(ref)
	if len(ct) == 0 || len(rt) == 0 {
		return 0
	}

	matchedRef := 0
	for _, r := range rt {
		for _, c := range ct {
			if tokenMatch(c, r) {
				matchedRef++
				break
			}
		}
	}
	matchedCand := 0
	for _, c := range ct {
		for _, r := range rt {
			if tokenMatch(c, r) {
				matchedCand++
				break
			}
		}
	}
	if matchedRef == 0 {
		return 0
	}

	return int(math.Round(overlapMax * float64(matchedRef+matchedCand) / float64(len(rt)+len(ct))))
}

func tokenMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) >= 5 && len(b) >= 5 {
		return strings.Contains(a, b) || strings.Contains(b, a)
	}
	return false
}

// abbreviationScore fires when the candidate uses a known short form of
// a reference token, or vice versa.
func (s *Scorer) abbreviationScore(title, ref string) int {
	for _, ab := range s.abbrevs {
		exp := normalize(ab.Expansion)
		short := normalize(ab.Short)
		if exp == "" || short == "" {
			continue
		}
		if (containsWord(title, short) && strings.Contains(ref, exp)) ||
			(containsWord(ref, short) && strings.Contains(title, exp)) {
			return abbreviationHit
		}
	}
	return 0
}

// titleMentionsAny reports whether the fetched page title contains any
// reference-name token. Single-letter tokens are ignored.
func titleMentionsAny(pageTitle string, refs []string) bool {
	squashed := squash(normalize(pageTitle))
	if squashed == "" {
		return false
	}
	for _, ref := range refs {
		for _, tok := range strings.Fields(normalize(ref)) {
			if len(tok) < 2 {
				continue
			}
			if strings.Contains(squashed, tok) {
				return true
			}
		}
	}
	return false
}

// normalize lowercases, strips punctuation, and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// squash removes all spaces from an already-normalized string.
func squash(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func containsWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
