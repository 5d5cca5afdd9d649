package search

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/codeGROOVE-dev/channelist/match"
	"github.com/codeGROOVE-dev/channelist/record"
)

// resultSelectors identify structured result blocks on a results page.
// The engine's markup churns; each selector matched a live layout at some
// point, and the first one that finds anything wins.
var resultSelectors = []string{
	"div.g",
	"div[data-ved]",
	".yuRUbf",
	"div.tF2Cxc",
}

// titleSelectors locate the result title within a result block.
var titleSelectors = []string{
	"h3",
	".LC20lb",
	`[role="heading"]`,
	"h3 span",
	".DKV0Md",
}

// parseResults extracts up to max platform candidates from a results
// page. Structured result blocks are tried first; when the markup
// matches none of the known layouts, it falls back to scanning every
// anchor on the page for platform links with usable anchor text.
func parseResults(body []byte, platform record.Platform, maxResults int) []match.Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	cands := structuredResults(doc, platform, maxResults)
	if len(cands) == 0 {
		cands = anchorResults(doc, platform, maxResults)
	}
	return cands
}

func structuredResults(doc *goquery.Document, platform record.Platform, maxResults int) []match.Candidate {
	var blocks *goquery.Selection
	for _, sel := range resultSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			blocks = s
			break
		}
	}
	if blocks == nil {
		return nil
	}

	var cands []match.Candidate
	seen := make(map[string]bool)
	blocks.EachWithBreak(func(_ int, block *goquery.Selection) bool {
		title := blockTitle(block)
		if title == "" {
			return true
		}
		href, ok := block.Find("a[href]").First().Attr("href")
		if !ok {
			return true
		}
		channel, ok := channelURL(cleanRedirectURL(href), platform)
		if !ok || seen[channel] {
			return true
		}
		seen[channel] = true
		cands = append(cands, match.Candidate{
			Platform: platform,
			URL:      channel,
			Title:    title,
		})
		return len(cands) < maxResults
	})
	return cands
}

func blockTitle(block *goquery.Selection) string {
	for _, sel := range titleSelectors {
		if t := strings.TrimSpace(block.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// anchorResults scans all anchors for platform links. The anchor text
// stands in for the result title; short fragments ("here", icons) are
// skipped.
func anchorResults(doc *goquery.Document, platform record.Platform, maxResults int) []match.Candidate {
	var cands []match.Candidate
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.TrimSpace(a.Text())
		if len(text) <= 3 {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		channel, ok := channelURL(cleanRedirectURL(href), platform)
		if !ok || seen[channel] {
			return true
		}
		seen[channel] = true
		cands = append(cands, match.Candidate{
			Platform: platform,
			URL:      channel,
			Title:    text,
		})
		return len(cands) < maxResults
	})
	return cands
}

// cleanRedirectURL strips the engine's /url?q= redirect wrapper,
// returning the destination URL.
func cleanRedirectURL(href string) string {
	rest, found := strings.CutPrefix(href, "/url?q=")
	if !found {
		return href
	}
	if i := strings.IndexByte(rest, '&'); i >= 0 {
		rest = rest[:i]
	}
	if unescaped, err := url.QueryUnescape(rest); err == nil {
		return unescaped
	}
	return rest
}

// channelURL reports whether rawURL is a channel page on the platform,
// returning it trimmed. Video, clip, and listing pages are rejected;
// only pages that identify a channel count.
func channelURL(rawURL string, platform record.Platform) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", false
	}
	if !strings.Contains(rawURL, platform.Domain()) {
		return "", false
	}

	switch platform {
	case record.YouTube:
		for _, bad := range []string{"/watch?", "/shorts/", "/playlist?"} {
			if strings.Contains(rawURL, bad) {
				return "", false
			}
		}
		for _, good := range []string{"/channel/", "/c/", "/@", "/user/"} {
			if strings.Contains(rawURL, good) {
				return strings.TrimSuffix(rawURL, "/"), true
			}
		}
		return "", false
	case record.Twitch:
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", false
		}
		seg := strings.Trim(u.Path, "/")
		if seg == "" || strings.Contains(seg, "/") {
			// Root page or a nested path (videos, clips); not a channel.
			return "", false
		}
		for _, bad := range []string{"directory", "videos", "search", "p", "downloads", "jobs", "turbo"} {
			if strings.EqualFold(seg, bad) {
				return "", false
			}
		}
		return strings.TrimSuffix(rawURL, "/"), true
	default:
		return "", false
	}
}

// pageTitle extracts the <title> text from an HTML page.
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
