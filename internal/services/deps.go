package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/maelberre/go-devis/internal/models"
)

// Renderer produces the PDF bytes for a quote. Rendering itself lives in a
// separate service; this core only consumes the byte stream.
type Renderer interface {
	QuotePDF(q *models.Quote) ([]byte, error)
}

// Mailer dispatches a rendered quote to its recipient and returns a
// delivery receipt. Delivery is at-most-once from this core's point of
// view; the transport may retry internally.
type Mailer interface {
	SendQuote(ctx context.Context, q *models.Quote, pdf []byte) (receipt string, err error)
}

// LogMailer is the development implementation: it logs instead of sending.
type LogMailer struct{}

func (LogMailer) SendQuote(_ context.Context, q *models.Quote, pdf []byte) (string, error) {
	receipt := uuid.NewString()
	log.Printf("mailer: quote=%d to=%s bytes=%d receipt=%s", q.ID, q.ClientEmail, len(pdf), receipt)
	return receipt, nil
}

// StaticRenderer emits a minimal single-page PDF so the send pipeline and
// the tracked download work without the real rendering service.
type StaticRenderer struct{}

func (StaticRenderer) QuotePDF(q *models.Quote) ([]byte, error) {
	body := fmt.Sprintf("Devis %d - %s - total TTC %.2f EUR", q.ID, q.ClientNom, q.TotalTTC)
	pdf := "%PDF-1.4\n" +
		"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
		"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
		"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 595 842]>>endobj\n" +
		"trailer<</Root 1 0 R>>\n" +
		"% " + body + "\n%%EOF\n"
	return []byte(pdf), nil
}
