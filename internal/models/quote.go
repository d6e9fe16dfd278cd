package models

import "time"

// Statuts du devis. Le statut ne bouge que le long des transitions
// gardées par services.LifecycleService.
const (
	StatusDraft     = "draft"     // brouillon, modifiable par son propriétaire
	StatusReady     = "ready"     // validé, contenu figé
	StatusSent      = "sent"      // envoyé au client
	StatusViewed    = "viewed"    // consultation authentique détectée
	StatusAccepted  = "accepted"
	StatusRefused   = "refused"
	StatusExpired   = "expired"
	StatusFinalized = "finalized" // téléchargé sans jamais être envoyé
	StatusArchived  = "archived"
)

// Quote / devis
type Quote struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index"`
	ClientNom   string `gorm:"not null"`
	ClientEmail string `gorm:"not null"`
	Status      string `gorm:"not null;default:draft;index"`
	// Statut avant archivage ordinaire, conservé pour l'affichage.
	// La restauration se base sur les marqueurs de date, pas sur ce champ.
	PreviousStatus string
	Items          []QuoteItem `gorm:"foreignKey:QuoteID"`
	TotalHT        float64
	TotalTVA       float64
	TotalTTC       float64
	Conditions     string // mentions libres (conditions de règlement, etc.)

	DateCreation     time.Time
	DateValidite     *time.Time
	DateEnvoi        *time.Time
	DateConsultation *time.Time
	DateAcceptation  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type QuoteItem struct {
	ID          uint   `gorm:"primaryKey"`
	QuoteID     uint   `gorm:"not null;index"`
	Description string `gorm:"not null"`
	Quantity    int    `gorm:"not null"`
	UnitPrice   float64
	VATRate     float64 // 0..1
}

// IsExpired reports whether the quote passed its validity date while still
// awaiting a client decision. Expiry is lazy: callers check at read time,
// there is no background job.
func (q *Quote) IsExpired(now time.Time) bool {
	if q.DateValidite == nil {
		return false
	}
	if q.Status != StatusSent && q.Status != StatusViewed {
		return false
	}
	return q.DateValidite.Before(now)
}

// DeriveRestoredStatus computes the status an archived quote goes back to,
// purely from its preserved date markers. Callers must not let the client
// pick an arbitrary target.
func DeriveRestoredStatus(q *Quote) string {
	switch {
	case q.DateAcceptation != nil:
		return StatusAccepted
	case q.DateEnvoi != nil:
		return StatusSent
	default:
		return StatusDraft
	}
}
