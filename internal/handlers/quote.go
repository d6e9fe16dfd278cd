package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maelberre/go-devis/internal/httpx"
	"github.com/maelberre/go-devis/internal/models"
	"github.com/maelberre/go-devis/internal/services"
	"gorm.io/gorm"
)

// QuoteHandler exposes quote CRUD and lifecycle operations. Lifecycle
// errors map to HTTP statuses here; only the lifecycle service decides
// what is legal.
type QuoteHandler struct {
	DB        *gorm.DB
	Lifecycle *services.LifecycleService
	Svc       *services.QuoteService
}

func NewQuoteHandler(db *gorm.DB, lc *services.LifecycleService, svc *services.QuoteService) *QuoteHandler {
	return &QuoteHandler{DB: db, Lifecycle: lc, Svc: svc}
}

// List: GET /quotes – paginated, optional status filter. Lazy expiry is
// applied to each returned quote.
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	dbq := h.DB.Model(&models.Quote{})
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		dbq = dbq.Where("status = ?", status)
	}
	var total int64
	dbq.Count(&total)
	var quotes []models.Quote
	if err := dbq.Preload("Items").Order("id desc").Limit(limit).Offset(offset).Find(&quotes).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_quotes", nil)
		return
	}
	now := h.Lifecycle.Now()
	for i := range quotes {
		if quotes[i].IsExpired(now) {
			if updated, err := h.Lifecycle.MarkExpired(quotes[i].ID); err == nil {
				quotes[i] = *updated
			}
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": quotes, "total": total, "limit": limit, "offset": offset})
}

// Create: POST /quotes – new draft with its lines.
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	type itemReq struct {
		Description string  `json:"description"`
		Quantity    int     `json:"quantity"`
		UnitPrice   float64 `json:"unit_price"`
		VATRate     float64 `json:"vat_rate"`
	}
	type createReq struct {
		UserID       uint      `json:"user_id"`
		ClientNom    string    `json:"client_nom"`
		ClientEmail  string    `json:"client_email"`
		Conditions   string    `json:"conditions"`
		ValidityDays int       `json:"validity_days"`
		Items        []itemReq `json:"items"`
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.UserID == 0 || req.ClientEmail == "" || len(req.Items) == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed",
			map[string]string{"user_id": "required", "client_email": "required", "items": "required"})
		return
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 || it.Description == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"items": "invalid_line"})
			return
		}
	}
	now := h.Lifecycle.Now()
	q := models.Quote{
		UserID:       req.UserID,
		ClientNom:    req.ClientNom,
		ClientEmail:  req.ClientEmail,
		Conditions:   req.Conditions,
		Status:       models.StatusDraft,
		DateCreation: now,
	}
	if req.ValidityDays > 0 {
		v := now.AddDate(0, 0, req.ValidityDays)
		q.DateValidite = &v
	}
	for _, it := range req.Items {
		q.Items = append(q.Items, models.QuoteItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			VATRate:     it.VATRate,
		})
	}
	q.TotalHT, q.TotalTVA, q.TotalTTC = h.Svc.ComputeTotals(&q)
	if err := h.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&q).Error
	}); err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_quote", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id": q.ID, "status": q.Status, "ht": q.TotalHT, "tva": q.TotalTVA, "ttc": q.TotalTTC,
	})
}

// Get: GET /quotes/get?id=...
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	q, err := h.Lifecycle.Get(id)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Update: POST /quotes/update?id=... – drafts only; everything else is
// frozen except through lifecycle transitions.
func (h *QuoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var q models.Quote
	if err := h.DB.Preload("Items").First(&q, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_quote", nil)
		return
	}
	if q.Status != models.StatusDraft {
		httpx.JSONError(w, http.StatusConflict, "invalid_transition",
			map[string]string{"status": q.Status, "reason": "only_draft_is_editable"})
		return
	}
	type updateReq struct {
		ClientNom   *string `json:"client_nom"`
		ClientEmail *string `json:"client_email"`
		Conditions  *string `json:"conditions"`
	}
	var req updateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	updates := map[string]any{}
	if req.ClientNom != nil {
		updates["client_nom"] = *req.ClientNom
	}
	if req.ClientEmail != nil {
		updates["client_email"] = *req.ClientEmail
	}
	if req.Conditions != nil {
		updates["conditions"] = *req.Conditions
	}
	if len(updates) == 0 {
		httpx.JSON(w, http.StatusOK, q)
		return
	}
	// Garde sur le statut : un validate concurrent ne doit pas être écrasé.
	res := h.DB.Model(&models.Quote{}).
		Where("id = ? AND status = ?", id, models.StatusDraft).
		Updates(updates)
	if res.Error != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_update_quote", nil)
		return
	}
	if res.RowsAffected == 0 {
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", nil)
		return
	}
	if err := h.DB.Preload("Items").First(&q, id).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_quote", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Validate: POST /quotes/validate?id=...
func (h *QuoteHandler) Validate(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id uint) (*models.Quote, error) { return h.Lifecycle.Validate(id) })
}

// Send: POST /quotes/send?id=...
func (h *QuoteHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id uint) (*models.Quote, error) { return h.Lifecycle.Send(r.Context(), id) })
}

// Accept: POST /quotes/accept?id=...
func (h *QuoteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.Lifecycle.MarkAccepted)
}

// Refuse: POST /quotes/refuse?id=...
func (h *QuoteHandler) Refuse(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.Lifecycle.MarkRefused)
}

// Delete: POST /quotes/delete?id=... – returns the removal outcome. Legal
// archiving is a normal outcome here, not an error.
func (h *QuoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	outcome, err := h.Lifecycle.Remove(id)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// Restore: POST /quotes/restore?id=...
func (h *QuoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	q, err := h.Lifecycle.Restore(id)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": q.ID, "status": q.Status})
}

// PDF: GET /quotes/pdf?id=... – owner-side download. A ready quote
// downloaded here goes terminal (finalized) without ever being sent.
func (h *QuoteHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	q, err := h.Lifecycle.Get(id)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	data, err := h.Lifecycle.Renderer.QuotePDF(q)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "pdf_generation_failed", nil)
		return
	}
	if q.Status == models.StatusReady {
		if _, err := h.Lifecycle.FinalizeOnDownload(id); err != nil && !errors.Is(err, services.ErrInvalidTransition) {
			httpx.JSONError(w, http.StatusInternalServerError, "failed_to_finalize", nil)
			return
		}
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"devis-"+strconv.Itoa(int(id))+".pdf\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *QuoteHandler) applyTransition(w http.ResponseWriter, r *http.Request, fn func(uint) (*models.Quote, error)) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	q, err := fn(id)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	resp := map[string]any{"id": q.ID, "status": q.Status}
	if q.DateEnvoi != nil {
		resp["date_envoi"] = q.DateEnvoi.Format(time.RFC3339)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *QuoteHandler) parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return 0, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return 0, false
	}
	return uint(id), true
}

func (h *QuoteHandler) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrQuoteNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", map[string]string{"detail": err.Error()})
	case errors.Is(err, services.ErrRetentionLocked):
		httpx.JSONError(w, http.StatusConflict, "retention_locked", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
