package models

import "time"

// RetentionYears is the legal retention horizon for accepted quotes
// (documents commerciaux, art. L123-22 du code de commerce).
const RetentionYears = 10

// LegalArchiveRecord is created exactly once when an accepted quote leaves
// the active set. It is never purged before RetainUntil.
type LegalArchiveRecord struct {
	ID          uint   `gorm:"primaryKey"`
	QuoteID     uint   `gorm:"not null;uniqueIndex"`
	Reference   string `gorm:"not null;uniqueIndex"` // identifiant d'archive
	ClientNom   string
	ClientEmail string
	TotalTTC    float64
	ArchivedAt  time.Time
	RetainUntil time.Time
}

// Audit logging
type AuditLog struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      // qui a déclenché la transition (0 = télémétrie)
	EntityType string    // ex: "Quote"
	EntityID   uint      // ID de l'entité modifiée
	Action     string    // ex: "validate", "send", "archive"
	OldValue   string    // ancien statut
	NewValue   string    // nouveau statut
	CreatedAt  time.Time // quand
}
