package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/maelberre/go-devis/internal/models"
	"github.com/maelberre/go-devis/internal/services"
	"github.com/maelberre/go-devis/internal/store"
	"gorm.io/gorm"
)

func newQuoteHandlerFixture(t *testing.T) (*gorm.DB, *QuoteHandler) {
	t.Helper()
	db := setupBeaconTestDB(t)
	eng := store.NewEngagementStore(db)
	lc := services.NewLifecycleService(db, eng, services.StaticRenderer{}, services.LogMailer{}, t.TempDir())
	return db, NewQuoteHandler(db, lc, services.NewQuoteService())
}

func createQuote(t *testing.T, h *QuoteHandler) uint {
	t.Helper()
	body := `{"user_id":1,"client_nom":"ClientCo","client_email":"client@example.fr","validity_days":30,` +
		`"items":[{"description":"Prestation","quantity":2,"unit_price":100,"vat_rate":0.2}]}`
	req := httptest.NewRequest(http.MethodPost, "/quotes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created["ttc"].(float64) != 240 {
		t.Fatalf("ttc = %v, want 240", created["ttc"])
	}
	return uint(created["id"].(float64))
}

func post(t *testing.T, fn http.HandlerFunc, path string, id uint) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path+"?id="+strconv.Itoa(int(id)), nil)
	w := httptest.NewRecorder()
	fn(w, req)
	return w
}

func TestQuoteCreateAndList(t *testing.T) {
	_, h := newQuoteHandlerFixture(t)
	id := createQuote(t, h)

	req := httptest.NewRequest(http.MethodGet, "/quotes?status=draft", nil)
	w := httptest.NewRecorder()
	h.List(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200 got %d", w.Code)
	}
	var listed map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if int(listed["total"].(float64)) != 1 {
		t.Fatalf("total = %v, want 1", listed["total"])
	}
	items := listed["items"].([]any)
	if uint(items[0].(map[string]any)["ID"].(float64)) != id {
		t.Fatalf("listed quote id mismatch")
	}
}

func TestQuoteValidateTwiceOverHTTP(t *testing.T) {
	_, h := newQuoteHandlerFixture(t)
	id := createQuote(t, h)

	w := post(t, h.Validate, "/quotes/validate", id)
	if w.Code != http.StatusOK {
		t.Fatalf("first validate: expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	w = post(t, h.Validate, "/quotes/validate", id)
	if w.Code != http.StatusConflict {
		t.Fatalf("second validate: expected 409 got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp["error"] != "invalid_transition" {
		t.Fatalf("error code = %v, want invalid_transition", resp["error"])
	}
}

func TestQuoteUpdateOnlyDraft(t *testing.T) {
	_, h := newQuoteHandlerFixture(t)
	id := createQuote(t, h)

	body := `{"conditions":"Paiement à 30 jours"}`
	req := httptest.NewRequest(http.MethodPost, "/quotes/update?id="+strconv.Itoa(int(id)), strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Update(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update draft: expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	if w := post(t, h.Validate, "/quotes/validate", id); w.Code != http.StatusOK {
		t.Fatalf("validate: %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodPost, "/quotes/update?id="+strconv.Itoa(int(id)), strings.NewReader(body))
	w = httptest.NewRecorder()
	h.Update(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("update ready quote: expected 409 got %d", w.Code)
	}
}

func TestQuoteDeleteOutcomes(t *testing.T) {
	db, h := newQuoteHandlerFixture(t)

	// Brouillon : suppression physique.
	draftID := createQuote(t, h)
	w := post(t, h.Delete, "/quotes/delete", draftID)
	if w.Code != http.StatusOK {
		t.Fatalf("delete draft: expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["outcome"] != "hard_deleted" {
		t.Fatalf("outcome = %s, want hard_deleted", resp["outcome"])
	}

	// Accepté : archivage légal obligatoire, jamais de suppression simple.
	q := models.Quote{UserID: 1, ClientNom: "C", ClientEmail: "c@d.fr", Status: models.StatusAccepted, TotalTTC: 120}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("seed accepted: %v", err)
	}
	w = post(t, h.Delete, "/quotes/delete", q.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("delete accepted: expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["outcome"] != "legally_archived" {
		t.Fatalf("outcome = %s, want legally_archived", resp["outcome"])
	}
	var count int64
	db.Model(&models.LegalArchiveRecord{}).Where("quote_id = ?", q.ID).Count(&count)
	if count != 1 {
		t.Fatalf("legal archive rows = %d, want 1", count)
	}

	// Restauration verrouillée pendant l'horizon légal.
	w = post(t, h.Restore, "/quotes/restore", q.ID)
	if w.Code != http.StatusConflict {
		t.Fatalf("restore locked: expected 409 got %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "retention_locked" {
		t.Fatalf("error = %s, want retention_locked", resp["error"])
	}
}

func TestQuoteSendFlow(t *testing.T) {
	db, h := newQuoteHandlerFixture(t)
	id := createQuote(t, h)

	if w := post(t, h.Validate, "/quotes/validate", id); w.Code != http.StatusOK {
		t.Fatalf("validate: %d", w.Code)
	}
	w := post(t, h.Send, "/quotes/send", id)
	if w.Code != http.StatusOK {
		t.Fatalf("send: expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != models.StatusSent {
		t.Fatalf("status = %v, want sent", resp["status"])
	}
	if resp["date_envoi"] == nil {
		t.Fatalf("date_envoi missing from response")
	}
	var rec models.EngagementRecord
	if err := db.Where("quote_id = ?", id).First(&rec).Error; err != nil {
		t.Fatalf("engagement row not created by send: %v", err)
	}
}

func TestQuotePDFFinalizesReadyQuote(t *testing.T) {
	db, h := newQuoteHandlerFixture(t)
	id := createQuote(t, h)
	if w := post(t, h.Validate, "/quotes/validate", id); w.Code != http.StatusOK {
		t.Fatalf("validate: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/quotes/pdf?id="+strconv.Itoa(int(id)), nil)
	w := httptest.NewRecorder()
	h.PDF(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("pdf: expected 200 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %s", ct)
	}
	var q models.Quote
	if err := db.First(&q, id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if q.Status != models.StatusFinalized {
		t.Fatalf("status = %s, want finalized (downloaded, never sent)", q.Status)
	}
}

func TestQuoteNotFound(t *testing.T) {
	_, h := newQuoteHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/quotes/get?id=%d", 424242), nil)
	w := httptest.NewRecorder()
	h.Get(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
