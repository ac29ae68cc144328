package format

import (
	"strings"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/segment"
)

// secondaryTypes are broker events that never stand on their own: they
// attach to the primary event sharing their booking date and ISIN.
var secondaryTypes = map[string]bool{
	"withholding tax": true,
	"correction":      true,
}

// NordnetHandler decodes Nordnet broker statement exports: tab separated,
// one row per booking, dividends and their withholding tax on separate
// rows joined by (date, ISIN).
type NordnetHandler struct {
	*CSVHandler
}

// NewNordnet creates the broker statement handler.
func NewNordnet() *NordnetHandler {
	return &NordnetHandler{
		CSVHandler: NewCSV(CSVConfig{
			FormatName:  "nordnet",
			Separator:   '\t',
			HasHeader:   true,
			TrimSpace:   true,
			Required:    []string{"booking_date", "transaction_type", "isin", "amount"},
			TimeColumn:  "booking_date",
			Significant: []string{"id", "booking_date", "transaction_type", "isin", "amount"},
			Numeric:     []string{"quantity", "price", "total_fees", "amount", "purchase_value", "result", "exchange_rate"},
			Text:        []string{"transaction_type", "security", "isin", "currency", "transaction_text"},
		}),
	}
}

// Segmenter joins related rows with a two-pass primary/secondary scan.
func (h *NordnetHandler) Segmenter() segment.Strategy {
	fallback := h.CSVHandler.Segmenter()
	return &segment.PairingStrategy{
		Primary: func(line model.DecodedLine) bool {
			return !secondaryTypes[strings.ToLower(line.Column("transaction_type"))]
		},
		PairKey: func(line model.DecodedLine) (string, bool) {
			isin := line.Column("isin")
			if isin == "" {
				return "", false
			}
			return line.Column("booking_date") + ":" + isin, true
		},
		Fallback: fallback,
	}
}
