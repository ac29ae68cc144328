package format

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/segment"
)

// CSVConfig drives the generic CSV decoder: separator, heading row and
// trimming rules, plus the field typing the rule engine needs.
type CSVConfig struct {
	FormatName   string
	Separator    rune
	HasHeader    bool
	TrimSpace    bool
	// Required lists headings that must be present for CanHandle to claim
	// the file.
	Required    []string
	TimeColumn  string
	TimeLayouts []string
	// Significant lists the columns hashed into the default segment id.
	Significant []string
	Numeric     []string
	Text        []string
}

// CSVHandler decodes separator-delimited exports with a heading row.
type CSVHandler struct {
	cfg CSVConfig
}

// NewCSV creates a handler for the given CSV dialect.
func NewCSV(cfg CSVConfig) *CSVHandler {
	if cfg.Separator == 0 {
		cfg.Separator = ','
	}
	return &CSVHandler{cfg: cfg}
}

// NewBankCSV creates the generic bank account CSV handler.
func NewBankCSV() *CSVHandler {
	return NewCSV(CSVConfig{
		FormatName:  "bank-csv",
		HasHeader:   true,
		TrimSpace:   true,
		Required:    []string{"type", "amount"},
		TimeColumn:  "date",
		Significant: []string{"date", "type", "amount", "balance", "description"},
		Numeric:     []string{"amount", "balance"},
		Text:        []string{"type", "description"},
	})
}

// Name implements Handler.
func (h *CSVHandler) Name() string { return h.cfg.FormatName }

// CanHandle claims the file when the first row contains every required
// heading.
func (h *CSVHandler) CanHandle(header []byte) bool {
	line := firstLine(header)
	if line == "" {
		return false
	}
	fields := splitHeadings(line, h.cfg.Separator)
	for _, want := range h.cfg.Required {
		if !containsFold(fields, want) {
			return false
		}
	}
	return true
}

// Decode implements Handler.
func (h *CSVHandler) Decode(filename string, content []byte) ([]model.DecodedLine, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = h.cfg.Separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, common.InvalidFile(filename, err.Error())
	}
	if len(records) == 0 {
		return nil, common.InvalidFile(filename, "empty file")
	}

	headings := records[0]
	body := records
	if h.cfg.HasHeader {
		for i, heading := range headings {
			headings[i] = normalizeHeading(heading)
		}
		body = records[1:]
	} else {
		headings = make([]string, len(records[0]))
		for i := range headings {
			headings[i] = fmt.Sprintf("column%d", i)
		}
	}

	var lines []model.DecodedLine
	for i, rec := range body {
		if len(rec) != len(headings) {
			return nil, common.InvalidFile(filename, fmt.Sprintf("row %d has %d fields, expected %d", i+2, len(rec), len(headings)))
		}
		columns := make(map[string]string, len(rec))
		for j, field := range rec {
			if h.cfg.TrimSpace {
				field = strings.TrimSpace(field)
			}
			columns[headings[j]] = field
		}
		lineNumber := i + 1
		if h.cfg.HasHeader {
			lineNumber = i + 2
		}
		lines = append(lines, model.DecodedLine{
			LineNumber: lineNumber,
			RawText:    strings.Join(rec, string(h.cfg.Separator)),
			Columns:    columns,
		})
	}

	return lines, nil
}

// Segmenter implements Handler with the default content-hash strategy.
func (h *CSVHandler) Segmenter() segment.Strategy {
	return &segment.HashStrategy{
		TimeColumn:  h.cfg.TimeColumn,
		Significant: h.cfg.Significant,
		TimeLayouts: h.cfg.TimeLayouts,
	}
}

// NumericFields implements Handler.
func (h *CSVHandler) NumericFields() []string { return h.cfg.Numeric }

// TextFields implements Handler.
func (h *CSVHandler) TextFields() []string { return h.cfg.Text }

func firstLine(header []byte) string {
	s := strings.TrimLeft(string(header), "\ufeff \t\r\n")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func splitHeadings(line string, sep rune) []string {
	fields := strings.Split(line, string(sep))
	for i, f := range fields {
		fields[i] = normalizeHeading(f)
	}
	return fields
}

func normalizeHeading(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(h), `"`)))
	return strings.ReplaceAll(h, " ", "_")
}

func containsFold(fields []string, want string) bool {
	for _, f := range fields {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
