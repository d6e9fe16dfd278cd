package server

import (
	"log"
	"net/http"
	"time"

	"github.com/maelberre/go-devis/internal/config"
	"github.com/maelberre/go-devis/internal/handlers"
	"github.com/maelberre/go-devis/internal/httpx"
	"github.com/maelberre/go-devis/internal/services"
	"github.com/maelberre/go-devis/internal/store"
	"gorm.io/gorm"
)

// New constructs the root http.Handler with all routes and middlewares applied.
func New(db *gorm.DB, cfg config.Config) http.Handler {
	mux := http.NewServeMux()

	// --- Health endpoints ---
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		// Ping DB, keep the body opaque.
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	engagement := store.NewEngagementStore(db)
	lifecycle := services.NewLifecycleService(db, engagement,
		services.StaticRenderer{}, services.LogMailer{}, cfg.DocumentDir)
	qh := handlers.NewQuoteHandler(db, lifecycle, services.NewQuoteService())
	bh := handlers.NewBeaconHandler(db, engagement, lifecycle, cfg.Tracking, cfg.Env)

	// Beacon endpoints: public, always terminate with content.
	mux.HandleFunc("GET /track/pixel/{id}/{email}", bh.Pixel)
	mux.HandleFunc("GET /track/pdf/{id}/{email}/{filename}", bh.PDF)

	// Quote endpoints
	mux.HandleFunc("GET /quotes", qh.List)
	mux.HandleFunc("POST /quotes", qh.Create)
	mux.HandleFunc("GET /quotes/get", qh.Get)
	mux.HandleFunc("POST /quotes/update", qh.Update)
	mux.HandleFunc("POST /quotes/validate", qh.Validate)
	mux.HandleFunc("POST /quotes/send", qh.Send)
	mux.HandleFunc("POST /quotes/accept", qh.Accept)
	mux.HandleFunc("POST /quotes/refuse", qh.Refuse)
	mux.HandleFunc("POST /quotes/delete", qh.Delete)
	mux.HandleFunc("POST /quotes/restore", qh.Restore)
	mux.HandleFunc("GET /quotes/pdf", qh.PDF)

	return withRecover(withLogging(mux))
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
