package search

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register all browser cookie stores
)

const maxBrowserCookies = 30

// browserCookies reads google.com cookies from local browser stores.
// Consent and session cookies make search requests look like a real
// browser session, which substantially reduces bot interstitials. Any
// failure is non-fatal: requests just go out cookieless.
func browserCookies(ctx context.Context, logger *slog.Logger) []*http.Cookie {
	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix("google.com"))
	if err != nil {
		logger.Debug("failed to read browser cookies", "error", err)
		return nil
	}
	if len(kookies) == 0 {
		logger.Debug("no browser cookies found for google.com")
		return nil
	}

	seen := make(map[string]bool, len(kookies))
	var cookies []*http.Cookie
	for _, k := range kookies {
		if k.Name == "" || seen[k.Name] {
			continue
		}
		seen[k.Name] = true
		cookies = append(cookies, &http.Cookie{Name: k.Name, Value: k.Value})
		if len(cookies) >= maxBrowserCookies {
			break
		}
	}
	logger.Debug("loaded browser cookies", "count", len(cookies))
	return cookies
}
