package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/maelberre/go-devis/internal/models"
	"github.com/maelberre/go-devis/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoveOutcome is the result of Remove. Legal archiving is not an error:
// a delete request on an accepted quote is redirected to the archive path.
type RemoveOutcome string

const (
	OutcomeHardDeleted     RemoveOutcome = "hard_deleted"
	OutcomeArchived        RemoveOutcome = "archived"
	OutcomeLegallyArchived RemoveOutcome = "legally_archived"
)

// writeAttempts bounds the retry of business-state writes on transient
// store failures. Beacon-path writes never retry (see handlers).
const writeAttempts = 3

// LifecycleService applies the guarded transitions of the quote state
// machine. Every transition is a single conditional update
// ("status = new WHERE id = ? AND status = expected") so arbitrarily
// interleaved concurrent callers stay safe without in-process locks.
type LifecycleService struct {
	DB         *gorm.DB
	Engagement *store.EngagementStore
	Renderer   Renderer
	Mailer     Mailer
	DocDir     string // répertoire des PDF rendus
	Now        func() time.Time
}

func NewLifecycleService(db *gorm.DB, eng *store.EngagementStore, r Renderer, m Mailer, docDir string) *LifecycleService {
	return &LifecycleService{DB: db, Engagement: eng, Renderer: r, Mailer: m, DocDir: docDir, Now: time.Now}
}

// Get loads a quote with its items, applying lazy expiry: a sent or viewed
// quote past its validity date flips to expired at read time. There is no
// cron for this.
func (s *LifecycleService) Get(id uint) (*models.Quote, error) {
	var q models.Quote
	if err := s.DB.Preload("Items").First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("load quote %d: %w", id, err)
	}
	if q.IsExpired(s.Now()) {
		if updated, err := s.MarkExpired(id); err == nil {
			return updated, nil
		}
		// Un échec d'expiration paresseuse n'empêche pas la lecture.
	}
	return &q, nil
}

// Validate moves a draft to ready. Content becomes immutable; only status
// and date markers change from here on.
func (s *LifecycleService) Validate(id uint) (*models.Quote, error) {
	return s.transition(id, []string{models.StatusDraft}, models.StatusReady, nil, "validate")
}

// Send moves a ready quote to sent: renders the PDF, stores it as a
// Document, stamps DateEnvoi, seeds the recipient's engagement row and
// dispatches the mail. The status claim happens first so two concurrent
// Send calls produce a single transition; the loser gets
// ErrInvalidTransition. A mail transport failure after the claim is
// logged, not propagated: exactly-once delivery is out of scope.
func (s *LifecycleService) Send(ctx context.Context, id uint) (*models.Quote, error) {
	now := s.Now()
	q, err := s.transition(id, []string{models.StatusReady}, models.StatusSent,
		map[string]any{"date_envoi": now}, "send")
	if err != nil {
		return nil, err
	}
	if err := s.Engagement.Ensure(q.ID, q.ClientEmail, now); err != nil {
		return nil, err
	}
	pdf, err := s.Renderer.QuotePDF(q)
	if err != nil {
		return nil, fmt.Errorf("render quote %d: %w", id, err)
	}
	if err := s.storeDocument(q, pdf); err != nil {
		return nil, err
	}
	if _, err := s.Mailer.SendQuote(ctx, q, pdf); err != nil {
		log.Printf("send quote %d: mail dispatch failed: %v", id, err)
	}
	return q, nil
}

// FinalizeOnDownload handles the "never sent but consumed" path: a ready
// quote whose PDF is downloaded by its owner goes terminal directly.
func (s *LifecycleService) FinalizeOnDownload(id uint) (*models.Quote, error) {
	return s.transition(id, []string{models.StatusReady}, models.StatusFinalized, nil, "finalize")
}

// RecordGenuineOpen is the only telemetry-driven transition. Idempotent:
// once viewed (or further along), repeated genuine-open signals are
// no-ops — counters still move in the engagement record, the quote does
// not re-transition. A concurrent loser sees zero rows affected and
// treats the transition as already done.
func (s *LifecycleService) RecordGenuineOpen(id uint, at time.Time) error {
	res, err := s.conditionalUpdate(id, []string{models.StatusSent}, map[string]any{
		"status":            models.StatusViewed,
		"date_consultation": at,
	})
	if err != nil {
		return err
	}
	if res == 0 {
		var q models.Quote
		if err := s.DB.Select("status").First(&q, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuoteNotFound
			}
			return fmt.Errorf("load quote %d: %w", id, err)
		}
		switch q.Status {
		case models.StatusDraft, models.StatusReady:
			// Une balise sur un devis jamais envoyé : lien forgé ou rejoué.
			return fmt.Errorf("%w: beacon on %s quote", ErrInvalidTransition, q.Status)
		default:
			return nil
		}
	}
	s.audit(id, "record_open", models.StatusSent, models.StatusViewed)
	return nil
}

// MarkAccepted records the client's acceptance.
func (s *LifecycleService) MarkAccepted(id uint) (*models.Quote, error) {
	return s.transition(id, []string{models.StatusSent, models.StatusViewed}, models.StatusAccepted,
		map[string]any{"date_acceptation": s.Now()}, "accept")
}

// MarkRefused records the client's refusal.
func (s *LifecycleService) MarkRefused(id uint) (*models.Quote, error) {
	return s.transition(id, []string{models.StatusSent, models.StatusViewed}, models.StatusRefused, nil, "refuse")
}

// MarkExpired flips a stale quote to expired. Normally reached through the
// lazy check in Get/List rather than called directly.
func (s *LifecycleService) MarkExpired(id uint) (*models.Quote, error) {
	return s.transition(id, []string{models.StatusSent, models.StatusViewed}, models.StatusExpired, nil, "expire")
}

// Remove applies the deletion policy:
//   - draft: hard delete, no archive row;
//   - accepted: mandatory legal archive (exactly one LegalArchiveRecord,
//     10 year horizon) — a plain delete is never available on this path;
//   - other non-terminal statuses: ordinary archive, prior status kept.
//
// Removing an already archived quote is a caller bug and fails.
func (s *LifecycleService) Remove(id uint) (RemoveOutcome, error) {
	var q models.Quote
	if err := s.DB.First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrQuoteNotFound
		}
		return "", fmt.Errorf("load quote %d: %w", id, err)
	}

	switch q.Status {
	case models.StatusDraft:
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("quote_id = ?", id).Delete(&models.QuoteItem{}).Error; err != nil {
				return err
			}
			res := tx.Where("id = ? AND status = ?", id, models.StatusDraft).Delete(&models.Quote{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInvalidTransition // validé entre-temps par un autre appel
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return "", err
			}
			return "", fmt.Errorf("hard delete quote %d: %w", id, err)
		}
		s.audit(id, "hard_delete", models.StatusDraft, "")
		return OutcomeHardDeleted, nil

	case models.StatusAccepted:
		now := s.Now()
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			arch := models.LegalArchiveRecord{
				QuoteID:     q.ID,
				Reference:   uuid.NewString(),
				ClientNom:   q.ClientNom,
				ClientEmail: q.ClientEmail,
				TotalTTC:    q.TotalTTC,
				ArchivedAt:  now,
				RetainUntil: now.AddDate(models.RetentionYears, 0, 0),
			}
			// Une seule archive légale par devis, même sous concurrence.
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "quote_id"}},
				DoNothing: true,
			}).Create(&arch).Error; err != nil {
				return err
			}
			res := tx.Model(&models.Quote{}).
				Where("id = ? AND status = ?", id, models.StatusAccepted).
				Updates(map[string]any{"status": models.StatusArchived, "previous_status": models.StatusAccepted})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInvalidTransition
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return "", err
			}
			return "", fmt.Errorf("legal archive quote %d: %w", id, err)
		}
		s.audit(id, "legal_archive", models.StatusAccepted, models.StatusArchived)
		return OutcomeLegallyArchived, nil

	case models.StatusArchived:
		return "", fmt.Errorf("%w: quote already archived", ErrInvalidTransition)

	default:
		res, err := s.conditionalUpdate(id, []string{q.Status}, map[string]any{
			"status":          models.StatusArchived,
			"previous_status": q.Status,
		})
		if err != nil {
			return "", err
		}
		if res == 0 {
			return "", fmt.Errorf("%w: quote changed concurrently", ErrInvalidTransition)
		}
		s.audit(id, "archive", q.Status, models.StatusArchived)
		return OutcomeArchived, nil
	}
}

// Restore brings an archived quote back, deriving the target status from
// its preserved date markers. A quote under legal retention stays locked.
func (s *LifecycleService) Restore(id uint) (*models.Quote, error) {
	var q models.Quote
	if err := s.DB.First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("load quote %d: %w", id, err)
	}
	if q.Status != models.StatusArchived {
		return nil, fmt.Errorf("%w: restore requires archived, got %s", ErrInvalidTransition, q.Status)
	}
	var arch models.LegalArchiveRecord
	err := s.DB.Where("quote_id = ?", id).First(&arch).Error
	switch {
	case err == nil:
		if arch.RetainUntil.After(s.Now()) {
			return nil, ErrRetentionLocked
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// pas d'archive légale, restauration libre
	default:
		return nil, fmt.Errorf("check legal archive for quote %d: %w", id, err)
	}
	target := models.DeriveRestoredStatus(&q)
	return s.transition(id, []string{models.StatusArchived}, target,
		map[string]any{"previous_status": ""}, "restore")
}

// transition applies one guarded status change and reloads the quote.
func (s *LifecycleService) transition(id uint, from []string, to string, extra map[string]any, action string) (*models.Quote, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	rows, err := s.conditionalUpdate(id, from, updates)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		var q models.Quote
		if err := s.DB.Select("status").First(&q, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrQuoteNotFound
			}
			return nil, fmt.Errorf("load quote %d: %w", id, err)
		}
		return nil, fmt.Errorf("%w: %s requires status in %v, got %s", ErrInvalidTransition, action, from, q.Status)
	}
	s.audit(id, action, from[0], to)
	var q models.Quote
	if err := s.DB.Preload("Items").First(&q, id).Error; err != nil {
		return nil, fmt.Errorf("reload quote %d: %w", id, err)
	}
	return &q, nil
}

// conditionalUpdate is the compare-and-swap primitive: zero rows affected
// means the precondition did not hold (or another writer won). Transient
// store failures are retried with short linear backoff.
func (s *LifecycleService) conditionalUpdate(id uint, from []string, updates map[string]any) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		res := s.DB.Model(&models.Quote{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(updates)
		if res.Error == nil {
			return res.RowsAffected, nil
		}
		lastErr = res.Error
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	return 0, fmt.Errorf("update quote %d: %w", id, lastErr)
}

// audit appends a transition row, best effort: an audit failure never
// blocks the transition it describes.
func (s *LifecycleService) audit(id uint, action, oldStatus, newStatus string) {
	entry := models.AuditLog{
		EntityType: "Quote",
		EntityID:   id,
		Action:     action,
		OldValue:   oldStatus,
		NewValue:   newStatus,
		CreatedAt:  s.Now(),
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		log.Printf("audit %s quote=%d: %v", action, id, err)
	}
}

func (s *LifecycleService) storeDocument(q *models.Quote, pdf []byte) error {
	name := fmt.Sprintf("devis-%d.pdf", q.ID)
	dir := s.DocDir
	if dir == "" {
		dir = "documents"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	doc := models.Document{OwnerType: "Quote", OwnerID: q.ID, Name: name, Path: path, MimeType: "application/pdf"}
	if err := s.DB.Where("owner_type = ? AND owner_id = ? AND name = ?", "Quote", q.ID, name).
		Assign(models.Document{Path: path, MimeType: "application/pdf"}).
		FirstOrCreate(&doc).Error; err != nil {
		return fmt.Errorf("store document row: %w", err)
	}
	return nil
}
