package services

import "github.com/maelberre/go-devis/internal/models"

// QuoteService holds quote-level business computations that need no DB.
type QuoteService struct{}

func NewQuoteService() *QuoteService { return &QuoteService{} }

// ComputeTotals computes HT, TVA and TTC amounts from the quote lines.
// VAT rates are fractions (0..1); negative rates are treated as zero.
func (s *QuoteService) ComputeTotals(q *models.Quote) (ht, tva, ttc float64) {
	if q == nil {
		return 0, 0, 0
	}
	for _, it := range q.Items {
		line := float64(it.Quantity) * it.UnitPrice
		ht += line
		rate := it.VATRate
		if rate < 0 {
			rate = 0
		}
		tva += line * rate
	}
	ttc = ht + tva
	return ht, tva, ttc
}
