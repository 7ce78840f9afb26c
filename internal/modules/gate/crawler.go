package gate

import "strings"

// crawlerSignatures covers the major search and preview crawlers. Matching
// is substring-based on the lowercased user agent, the same approach the
// permit-crawlers feature documents: teaser pages should be indexable
// without a broken CTA.
var crawlerSignatures = []string{
	"googlebot",
	"bingbot",
	"slurp", // Yahoo
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"applebot",
	"facebookexternalhit",
	"twitterbot",
	"linkedinbot",
	"ahrefsbot",
	"semrushbot",
	"petalbot",
}

// IsCrawler reports whether the user agent belongs to a known crawler.
func IsCrawler(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, sig := range crawlerSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}
