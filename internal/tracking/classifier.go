package tracking

import (
	"regexp"
	"strings"
)

// Classification is the bot/preload verdict for one signal. The classifier
// never errors: an unrecognized user-agent just yields the zero value.
type Classification struct {
	IsBot     bool
	IsPreload bool
}

// Crawler, scanner and HTTP-library tokens. Matched as lowercase
// substrings against the user-agent.
var botTokens = []string{
	"bot", "crawler", "spider", "slurp", "scanner", "monitor",
	"curl", "wget", "python", "go-http-client", "java/", "okhttp",
	"libwww", "httpclient", "http_request", "phantomjs", "headless",
	// passerelles de sécurité mail : elles suivent les liens avant le destinataire
	"proofpoint", "mimecast", "barracuda", "symantec", "forcepoint",
	"trendmicro", "urldefense", "safelinks",
}

// Mail-client prefetch fingerprints. Independent of IsBot: webmail image
// proxies fetch on behalf of a real user, link scanners do not.
var preloadTokens = []string{
	"googleimageproxy",
	"yahoomailproxy",
	"chrome/42.0.2311.135", // build headless figé utilisé par les préchargeurs webmail
	"ms-office",
	"microsoft outlook",
}

// A composite "Mozilla/5.0 (platform...) ... Engine/NN" string. Real
// browsers embed vendor tokens ("Google", "bot"-adjacent words) that would
// otherwise trip the loose substring match above.
var realBrowserRe = regexp.MustCompile(`(?i)^Mozilla/5\.0 \([^)]+\).*(Chrome|CriOS|Firefox|FxiOS|Safari|Edg|OPR)/\d+`)

// Classify is a pure function over the signal record.
func Classify(sig Signal) Classification {
	ua := strings.ToLower(sig.UserAgent)
	var c Classification
	for _, tok := range preloadTokens {
		if strings.Contains(ua, tok) {
			c.IsPreload = true
			break
		}
	}
	if ua == "" {
		// Pas d'user-agent du tout : aucun navigateur réel ne fait ça.
		c.IsBot = true
		return c
	}
	for _, tok := range botTokens {
		if strings.Contains(ua, tok) {
			c.IsBot = true
			break
		}
	}
	// Un UA composite de vrai navigateur n'est pas un bot, sauf variante
	// headless qui garde la forme composite.
	if c.IsBot && !strings.Contains(ua, "headless") && realBrowserRe.MatchString(sig.UserAgent) {
		c.IsBot = false
	}
	return c
}
