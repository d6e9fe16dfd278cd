package models

import "time"

// EngagementRecord aggregates beacon activity for one (quote, recipient)
// pair. One row per destinataire réellement contacté (en pratique un seul).
//
// CreatedAt is the first-ever-seen timestamp for the key and is the anchor
// of the anti-robot delay window. It is written exactly once, by an
// ON CONFLICT DO NOTHING insert, and never updated afterwards.
type EngagementRecord struct {
	ID        uint   `gorm:"primaryKey"`
	QuoteID   uint   `gorm:"not null;uniqueIndex:idx_engagement_key"`
	Recipient string `gorm:"not null;uniqueIndex:idx_engagement_key"`

	Opened     bool
	OpenedAt   *time.Time
	OpenCount  int
	Clicked    bool
	ClickedAt  *time.Time
	ClickCount int

	// Dernière classification calculée, pour le diagnostic.
	ConfidenceScore int
	IsBot           bool
	IsPreload       bool
	UserAgent       string
	ClientIP        string

	LastActivityAt time.Time
	CreatedAt      time.Time
}
