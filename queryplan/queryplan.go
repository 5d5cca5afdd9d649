// Package queryplan builds the ordered search-query list for one input
// record and extracts fallback names from profile URLs.
//
// Query ordering is deliberate: usernames are most often verbatim channel
// handles, profile names carry decorative text (quotes, emoji,
// parentheticals) that reduces precision, and URL-derived names are the
// last resort. The URL-derived query is deprioritized, never dropped.
package queryplan

import (
	"net/url"
	"strings"

	"github.com/codeGROOVE-dev/channelist/record"
)

// Query source names.
const (
	SourceUsername    = "username"
	SourceProfileName = "profile_name"
	SourceCombined    = "combined"
	SourceURLName     = "url_name"
)

// Query is one search string plus which reference name produced it and
// its trial order (lower tries first).
type Query struct {
	Text     string
	Source   string
	Priority int
}

// pathStopWords are path segments that are never usernames.
var pathStopWords = map[string]bool{
	"status": true, "statuses": true, "home": true, "explore": true,
	"notifications": true, "messages": true, "bookmarks": true,
	"lists": true, "profile": true, "more": true, "compose": true,
	"search": true, "settings": true, "help": true, "hashtag": true,
	"intent": true, "share": true, "i": true,
}

// BuildQueries returns the ordered query list for a record. Queries whose
// source name is empty or duplicates an earlier query (case-insensitive,
// whitespace-normalized) are skipped.
func BuildQueries(rec record.Record) []Query {
	type candidate struct {
		text   string
		source string
	}
	var cands []candidate

	if rec.Username != "" {
		cands = append(cands, candidate{rec.Username, SourceUsername})
	}
	if rec.ProfileName != "" {
		cands = append(cands, candidate{rec.ProfileName, SourceProfileName})
	}
	if rec.Username != "" && rec.ProfileName != "" {
		cands = append(cands, candidate{rec.Username + " " + rec.ProfileName, SourceCombined})
	}
	if name := ExtractURLName(rec.URL); name != "" {
		cands = append(cands, candidate{name, SourceURLName})
	}

	seen := make(map[string]bool, len(cands))
	var queries []Query
	for _, c := range cands {
		key := dedupeKey(c.text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, Query{
			Text:     c.text,
			Source:   c.source,
			Priority: len(queries) + 1,
		})
	}
	return queries
}

// ReferenceNames returns the set of candidate "true names" to match
// candidates against: username, profile name, and the URL-derived name.
// Empty and duplicate entries are dropped.
func ReferenceNames(rec record.Record) []string {
	seen := make(map[string]bool, 3)
	var names []string
	for _, n := range []string{rec.Username, rec.ProfileName, ExtractURLName(rec.URL)} {
		key := dedupeKey(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, n)
	}
	return names
}

// ExtractURLName extracts a potential name from a profile URL's path.
// It returns the first path segment that is not a known non-name token
// (status markers, numeric IDs, section paths), or "" when the URL has
// no usable segment.
func ExtractURLName(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	for _, seg := range strings.Split(u.Path, "/") {
		seg = strings.TrimSpace(seg)
		seg = strings.TrimPrefix(seg, "@")
		if seg == "" {
			continue
		}
		if pathStopWords[strings.ToLower(seg)] || isNumeric(seg) {
			continue
		}
		return seg
	}
	return ""
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// dedupeKey normalizes a name for duplicate detection: lowercased with
// whitespace runs collapsed.
func dedupeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
