package format

import (
	"bytes"
	"strings"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// CoinbaseHandler decodes Coinbase transaction history exports. The files
// carry a free-text preamble before the heading row, so the decoder skips
// forward to the first row starting with "Timestamp".
type CoinbaseHandler struct {
	*CSVHandler
}

// NewCoinbase creates the crypto exchange history handler.
func NewCoinbase() *CoinbaseHandler {
	return &CoinbaseHandler{
		CSVHandler: NewCSV(CSVConfig{
			FormatName:  "coinbase",
			HasHeader:   true,
			TrimSpace:   true,
			Required:    []string{"timestamp", "transaction_type", "asset", "quantity_transacted"},
			TimeColumn:  "timestamp",
			TimeLayouts: []string{"2006-01-02T15:04:05Z", "2006-01-02 15:04:05 MST", "2006-01-02 15:04:05"},
			Significant: []string{"timestamp", "transaction_type", "asset", "quantity_transacted", "total"},
			Numeric:     []string{"quantity_transacted", "spot_price_at_transaction", "subtotal", "total", "fees"},
			Text:        []string{"transaction_type", "asset", "notes"},
		}),
	}
}

// CanHandle claims files whose probe contains the Coinbase heading row,
// which may sit below a preamble.
func (h *CoinbaseHandler) CanHandle(header []byte) bool {
	text := string(header)
	return strings.Contains(text, "Timestamp") &&
		strings.Contains(text, "Transaction Type") &&
		strings.Contains(text, "Quantity Transacted")
}

// Decode strips the preamble and delegates to the CSV decoder. Line
// numbers stay relative to the original file.
func (h *CoinbaseHandler) Decode(filename string, content []byte) ([]model.DecodedLine, error) {
	rows := bytes.Split(content, []byte("\n"))
	start := -1
	for i, row := range rows {
		if bytes.HasPrefix(bytes.TrimLeft(row, "\ufeff \t"), []byte("Timestamp")) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, common.InvalidFile(filename, "heading row not found")
	}

	lines, err := h.CSVHandler.Decode(filename, bytes.Join(rows[start:], []byte("\n")))
	if err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].LineNumber += start
	}
	return lines, nil
}
