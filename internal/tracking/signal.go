// Package tracking classifies beacon requests (pixel and PDF fetches) and
// decides whether they reflect a genuine human opening a quote.
//
// Everything in this package is pure: no I/O, no clock reads, no store
// access. The HTTP handlers extract a Signal, the classifier and scorer
// turn it into a Classification and a score, and the Gate combines both
// with the persisted first-seen timestamp.
package tracking

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// Signal is the flattened view of one beacon request.
type Signal struct {
	UserAgent   string
	Referer     string
	Accept      string
	ClientIP    string
	JSConfirmed bool // js=1 : posé par le script côté client, impossible pour un simple GET d'image
	ReceivedAt  time.Time
}

// ExtractSignal normalizes one inbound beacon request. It never fails:
// missing headers simply leave fields empty and the classifier applies
// conservative defaults.
func ExtractSignal(r *http.Request, now time.Time) Signal {
	return Signal{
		UserAgent:   r.UserAgent(),
		Referer:     r.Referer(),
		Accept:      r.Header.Get("Accept"),
		ClientIP:    clientIP(r),
		JSConfirmed: r.URL.Query().Get("js") == "1",
		ReceivedAt:  now,
	}
}

func clientIP(r *http.Request) string {
	// Behind the reverse proxy the first X-Forwarded-For entry is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
