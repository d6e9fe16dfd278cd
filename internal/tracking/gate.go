package tracking

import "time"

// GateConfig holds the two tunable knobs of the confidence gate.
type GateConfig struct {
	// Minimum score for a beacon to count as genuine.
	Threshold int
	// Anti-robot delay: minimum elapsed time since the first beacon ever
	// seen for the (quote, recipient) key. Scanners fetch the pixel within
	// milliseconds of delivery, long before a human could open the mail.
	OpenDelay time.Duration
}

// Decision is the gate verdict for one beacon. Reason is filled on refusal
// for diagnostics, never shown to the remote client.
type Decision struct {
	Genuine bool
	Score   int
	Reason  string
}

const (
	ReasonBot      = "bot_agent"
	ReasonLowScore = "score_below_threshold"
	ReasonTooFast  = "within_open_delay"
	ReasonNoAnchor = "missing_first_seen"
)

// Evaluate combines score, classification and the immutable first-seen
// timestamp. All three conditions must hold; a refused beacon still counts
// in the engagement record, it just never promotes the quote status.
func Evaluate(cfg GateConfig, score int, cls Classification, firstSeen, now time.Time) Decision {
	d := Decision{Score: score}
	switch {
	case firstSeen.IsZero():
		d.Reason = ReasonNoAnchor
	case cls.IsBot:
		d.Reason = ReasonBot
	case score < cfg.Threshold:
		d.Reason = ReasonLowScore
	case now.Sub(firstSeen) < cfg.OpenDelay:
		d.Reason = ReasonTooFast
	default:
		d.Genuine = true
	}
	return d
}
