// Package store owns the persisted engagement counters. It is the only
// component that writes EngagementRecord rows; it never touches Quote
// status, which belongs to the lifecycle service.
package store

import (
	"fmt"
	"time"

	"github.com/maelberre/go-devis/internal/models"
	"github.com/maelberre/go-devis/internal/tracking"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventKind distinguishes pixel loads from tracked PDF fetches.
type EventKind string

const (
	EventOpen  EventKind = "open"  // pixel 1×1
	EventClick EventKind = "click" // téléchargement du PDF
)

type EngagementStore struct {
	db *gorm.DB
}

func NewEngagementStore(db *gorm.DB) *EngagementStore {
	return &EngagementStore{db: db}
}

// Ensure creates the engagement row for a key if it does not exist yet,
// fixing CreatedAt. Called when a quote is sent so the anti-robot window
// is anchored at delivery rather than at the first beacon.
func (s *EngagementStore) Ensure(quoteID uint, recipient string, at time.Time) error {
	rec := models.EngagementRecord{
		QuoteID:        quoteID,
		Recipient:      recipient,
		LastActivityAt: at,
		CreatedAt:      at,
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "quote_id"}, {Name: "recipient"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return fmt.Errorf("ensure engagement row: %w", res.Error)
	}
	return nil
}

// Upsert records one beacon. On first call for a key it creates the row
// and fixes CreatedAt; on every call it increments the relevant counter
// atomically (concurrent upserts never lose counts) and refreshes the last
// classification. It returns the row as persisted and whether this call
// created it.
//
// Opened/OpenedAt are NOT set here: they require the confidence gate,
// which needs the CreatedAt returned by this call. See MarkOpened.
func (s *EngagementStore) Upsert(quoteID uint, recipient string, sig tracking.Signal, cls tracking.Classification, score int, kind EventKind) (*models.EngagementRecord, bool, error) {
	rec := models.EngagementRecord{
		QuoteID:         quoteID,
		Recipient:       recipient,
		ConfidenceScore: score,
		IsBot:           cls.IsBot,
		IsPreload:       cls.IsPreload,
		UserAgent:       sig.UserAgent,
		ClientIP:        sig.ClientIP,
		LastActivityAt:  sig.ReceivedAt,
		CreatedAt:       sig.ReceivedAt,
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "quote_id"}, {Name: "recipient"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create engagement row: %w", res.Error)
	}
	isFirstSeen := res.RowsAffected == 1

	updates := map[string]any{
		"confidence_score": score,
		"is_bot":           cls.IsBot,
		"is_preload":       cls.IsPreload,
		"user_agent":       sig.UserAgent,
		"client_ip":        sig.ClientIP,
		"last_activity_at": sig.ReceivedAt,
	}
	switch kind {
	case EventClick:
		updates["click_count"] = gorm.Expr("click_count + 1")
		updates["clicked"] = true
		updates["clicked_at"] = gorm.Expr("COALESCE(clicked_at, ?)", sig.ReceivedAt)
	default:
		updates["open_count"] = gorm.Expr("open_count + 1")
	}
	if err := s.db.Model(&models.EngagementRecord{}).
		Where("quote_id = ? AND recipient = ?", quoteID, recipient).
		Updates(updates).Error; err != nil {
		return nil, isFirstSeen, fmt.Errorf("update engagement counters: %w", err)
	}

	var out models.EngagementRecord
	if err := s.db.Where("quote_id = ? AND recipient = ?", quoteID, recipient).
		First(&out).Error; err != nil {
		return nil, isFirstSeen, fmt.Errorf("reload engagement row: %w", err)
	}
	return &out, isFirstSeen, nil
}

// MarkOpened flags the record as genuinely opened. OpenedAt keeps the
// first genuine open; later calls only confirm the flag.
func (s *EngagementStore) MarkOpened(quoteID uint, recipient string, at time.Time) error {
	err := s.db.Model(&models.EngagementRecord{}).
		Where("quote_id = ? AND recipient = ?", quoteID, recipient).
		Updates(map[string]any{
			"opened":    true,
			"opened_at": gorm.Expr("COALESCE(opened_at, ?)", at),
		}).Error
	if err != nil {
		return fmt.Errorf("mark opened: %w", err)
	}
	return nil
}

// Get returns the engagement row for a key, or gorm.ErrRecordNotFound.
func (s *EngagementStore) Get(quoteID uint, recipient string) (*models.EngagementRecord, error) {
	var rec models.EngagementRecord
	if err := s.db.Where("quote_id = ? AND recipient = ?", quoteID, recipient).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
