// Package record defines the data model for channel resolution: input
// records, per-platform match results, and the CSV-backed result store
// that doubles as resume state.
package record

import "errors"

// Common errors returned by record loading and storage.
var (
	ErrMalformedRow = errors.New("malformed input row")
	ErrMissingKey   = errors.New("missing record key")
)

// Platform identifies a channel platform being resolved.
type Platform string

// Supported platforms.
const (
	YouTube Platform = "youtube"
	Twitch  Platform = "twitch"
)

// Platforms lists every platform a session resolves, in output order.
var Platforms = []Platform{YouTube, Twitch}

// Domain returns the host fragment used to recognize channel URLs.
func (p Platform) Domain() string {
	switch p {
	case YouTube:
		return "youtube.com"
	case Twitch:
		return "twitch.tv"
	default:
		return string(p)
	}
}

// SearchSuffix returns the terms appended to a query to steer search
// results toward this platform.
func (p Platform) SearchSuffix() string {
	switch p {
	case YouTube:
		return " youtube channel"
	case Twitch:
		return " twitch"
	default:
		return ""
	}
}

// Record is one input profile entry to resolve. Immutable once loaded.
// Username is the identity key and is assumed unique within a batch.
type Record struct {
	Username    string
	ProfileName string
	URL         string
	Followers   int64
}

// Key returns the identity key used for resume bookkeeping.
func (r Record) Key() string { return r.Username }

// Match is the resolved channel for one (record, platform) pair.
// A zero score with an empty URL means no match was found.
type Match struct {
	ChannelURL string
	Score      int
}

// Result is the atomic unit of output: one row per input record with a
// match per platform.
type Result struct {
	Record
	YouTube Match
	Twitch  Match
}

// ForPlatform returns the match for the given platform.
func (r Result) ForPlatform(p Platform) Match {
	if p == Twitch {
		return r.Twitch
	}
	return r.YouTube
}

// SetMatch stores the match for the given platform.
func (r *Result) SetMatch(p Platform, m Match) {
	if p == Twitch {
		r.Twitch = m
	} else {
		r.YouTube = m
	}
}
