package tracking

import (
	"regexp"
	"strconv"
	"strings"
)

// ScoreProfile holds the weights of the confidence scorer. Pixel and PDF
// beacons share the shape but start from different bases: an active PDF
// fetch is a stronger signal than a passive image load. The weights are
// empirical; only their sign is load-bearing, the exact values come from
// configuration.
type ScoreProfile struct {
	Base                int
	BotPenalty          int // agent automatisé
	PreloadPenalty      int // préchargeur webmail, le signal négatif le plus fort
	ModernBrowserBonus  int // version de moteur récente
	JSConfirmBonus      int // flag js=1, le signal positif le plus fort
	LongAgentBonus      int // UA long et structuré comme un vrai moteur
	AcceptHeaderBonus   int // Accept: text/html ou sous-type application
	WebmailRefererBonus int // referer sur un domaine webmail connu
}

// DefaultProfile returns the standard weight set on top of the given base.
func DefaultProfile(base int) ScoreProfile {
	return ScoreProfile{
		Base:                base,
		BotPenalty:          -60,
		PreloadPenalty:      -70,
		ModernBrowserBonus:  30,
		JSConfirmBonus:      50,
		LongAgentBonus:      20,
		AcceptHeaderBonus:   15,
		WebmailRefererBonus: 30,
	}
}

var engineVersionRe = regexp.MustCompile(`(?i)(Chrome|CriOS|Firefox|FxiOS|Edg|OPR|Version)/(\d+)`)

// Engine majors older than this are either museum pieces or frozen
// scanner builds.
const modernEngineMajor = 70

var webmailDomains = []string{
	"mail.google.com",
	"outlook.live.com",
	"outlook.office.com",
	"outlook.office365.com",
	"mail.yahoo.com",
	"mail.proton.me",
	"mail.orange.fr",
	"webmail.laposte.net",
	"roundcube",
	"zimbra",
}

// Score computes the confidence score for one signal, clamped to [0,100].
// Pure function: same inputs, same score.
func (p ScoreProfile) Score(sig Signal, cls Classification) int {
	score := p.Base
	if cls.IsBot {
		score += p.BotPenalty
	}
	if cls.IsPreload {
		score += p.PreloadPenalty
	}
	if isModernEngine(sig.UserAgent) {
		score += p.ModernBrowserBonus
	}
	if sig.JSConfirmed {
		score += p.JSConfirmBonus
	}
	if isLongAgent(sig.UserAgent) {
		score += p.LongAgentBonus
	}
	if acceptLooksInteractive(sig.Accept) {
		score += p.AcceptHeaderBonus
	}
	if isWebmailReferer(sig.Referer) {
		score += p.WebmailRefererBonus
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func isModernEngine(ua string) bool {
	m := engineVersionRe.FindStringSubmatch(ua)
	if m == nil {
		return false
	}
	major, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}
	return major >= modernEngineMajor
}

func isLongAgent(ua string) bool {
	if len(ua) < 80 {
		return false
	}
	lower := strings.ToLower(ua)
	return strings.Contains(lower, "applewebkit") || strings.Contains(lower, "gecko")
}

func acceptLooksInteractive(accept string) bool {
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "application/")
}

func isWebmailReferer(ref string) bool {
	if ref == "" {
		return false
	}
	lower := strings.ToLower(ref)
	for _, d := range webmailDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}
