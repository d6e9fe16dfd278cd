package handlers

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/maelberre/go-devis/internal/config"
	"github.com/maelberre/go-devis/internal/models"
	"github.com/maelberre/go-devis/internal/services"
	"github.com/maelberre/go-devis/internal/store"
	"github.com/maelberre/go-devis/internal/tracking"
	"gorm.io/gorm"
)

// 1×1 transparent GIF, served on every pixel request no matter what
// happened internally: the beacon must always look like a normal image.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x21, 0xF9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3B,
}

// BeaconHandler receives tracking requests. All internal failures on this
// path are logged and swallowed; the remote client always gets its pixel
// or its file so tracking stays invisible.
type BeaconHandler struct {
	DB        *gorm.DB
	Store     *store.EngagementStore
	Lifecycle *services.LifecycleService
	Cfg       config.Tracking
	Env       string
	Now       func() time.Time
}

func NewBeaconHandler(db *gorm.DB, st *store.EngagementStore, lc *services.LifecycleService, cfg config.Tracking, env string) *BeaconHandler {
	return &BeaconHandler{DB: db, Store: st, Lifecycle: lc, Cfg: cfg, Env: env, Now: time.Now}
}

// Pixel: GET /track/pixel/{id}/{email} – always 200 with the GIF.
func (h *BeaconHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	quoteID, recipient, ok := h.parseKey(r)
	if ok {
		decision, cls := h.record(r, quoteID, recipient, store.EventOpen, h.Cfg.PixelBaseScore)
		h.debugHeaders(w, decision, cls)
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pixelGIF); err != nil {
		_ = err
	}
}

// PDF: GET /track/pdf/{id}/{email}/{filename} – streams the stored file,
// 404 when absent. The fetch itself is recorded as a click with the PDF
// scorer profile (an active fetch is a stronger signal than a pixel).
func (h *BeaconHandler) PDF(w http.ResponseWriter, r *http.Request) {
	quoteID, recipient, ok := h.parseKey(r)
	filename := r.PathValue("filename")
	if !ok || filename == "" {
		http.NotFound(w, r)
		return
	}
	var doc models.Document
	err := h.DB.Where("owner_type = ? AND owner_id = ? AND name = ?", "Quote", quoteID, filename).
		First(&doc).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("pdf beacon quote=%d: load document: %v", quoteID, err)
		}
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		log.Printf("pdf beacon quote=%d: read %s: %v", quoteID, doc.Path, err)
		http.NotFound(w, r)
		return
	}

	decision, cls := h.record(r, quoteID, recipient, store.EventClick, h.Cfg.PDFBaseScore)
	h.debugHeaders(w, decision, cls)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		_ = err
	}
}

// record runs the full telemetry path for one beacon: extract, classify,
// score, upsert counters, evaluate the gate and, when genuine, promote the
// quote. Every error is logged and dropped.
func (h *BeaconHandler) record(r *http.Request, quoteID uint, recipient string, kind store.EventKind, base int) (tracking.Decision, tracking.Classification) {
	now := h.Now()
	sig := tracking.ExtractSignal(r, now)
	cls := tracking.Classify(sig)
	score := tracking.DefaultProfile(base).Score(sig, cls)

	rec, _, err := h.Store.Upsert(quoteID, recipient, sig, cls, score, kind)
	if err != nil {
		log.Printf("beacon quote=%d recipient=%s: upsert: %v", quoteID, recipient, err)
		return tracking.Decision{Score: score}, cls
	}

	gate := tracking.GateConfig{Threshold: h.Cfg.ScoreThreshold, OpenDelay: h.Cfg.OpenDelay}
	decision := tracking.Evaluate(gate, score, cls, rec.CreatedAt, now)
	// test=1 court-circuite la vérification, hors production uniquement.
	if r.URL.Query().Get("test") == "1" && h.Env != "production" {
		decision.Genuine = true
		decision.Reason = ""
	}
	if !decision.Genuine {
		return decision, cls
	}
	if err := h.Store.MarkOpened(quoteID, recipient, now); err != nil {
		log.Printf("beacon quote=%d recipient=%s: mark opened: %v", quoteID, recipient, err)
	}
	if err := h.Lifecycle.RecordGenuineOpen(quoteID, now); err != nil {
		log.Printf("beacon quote=%d recipient=%s: record open: %v", quoteID, recipient, err)
	}
	return decision, cls
}

func (h *BeaconHandler) parseKey(r *http.Request) (uint, string, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return uint(id), decodeEmail(r.PathValue("email")), true
}

// decodeEmail accepts the base64 form used in generated links, falling
// back to the raw value for legacy links that embedded the address as-is.
func decodeEmail(enc string) string {
	for _, dec := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding} {
		if b, err := dec.DecodeString(enc); err == nil && len(b) > 0 {
			return string(b)
		}
	}
	return enc
}

// debugHeaders exposes the classification for internal tooling only.
func (h *BeaconHandler) debugHeaders(w http.ResponseWriter, d tracking.Decision, cls tracking.Classification) {
	if !h.Cfg.DebugHeaders {
		return
	}
	w.Header().Set("X-Track-Score", strconv.Itoa(d.Score))
	w.Header().Set("X-Track-Bot", strconv.FormatBool(cls.IsBot))
	w.Header().Set("X-Track-Genuine", strconv.FormatBool(d.Genuine))
	if d.Reason != "" {
		w.Header().Set("X-Track-Reason", d.Reason)
	}
}
