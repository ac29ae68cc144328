package format

import (
	"fmt"
	"strings"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/segment"
)

// FixedWidthHandler decodes the legacy fixed-width banking interchange
// format: one record per line, record type in the first three bytes,
// fields at fixed byte offsets with per-field post-processing. Extra info
// records (T11) attach to the preceding transaction record.
type FixedWidthHandler struct{}

// NewFixedWidth creates the fixed-width bank statement handler.
func NewFixedWidth() *FixedWidthHandler {
	return &FixedWidthHandler{}
}

// Record type markers.
const (
	recHeader      = "T00"
	recTransaction = "T10"
	recExtraInfo   = "T11"
	recBalance     = "T40"
	recTrailer     = "T99"
)

// fieldSpec is one fixed-offset field with optional post-processing.
type fieldSpec struct {
	post       func(string) (string, error)
	name       string
	start, end int
}

// transactionFields is the T10 record layout.
var transactionFields = []fieldSpec{
	{name: "number", start: 3, end: 9, post: stripZeros},
	{name: "archive_id", start: 9, end: 27, post: trimField},
	{name: "booking_date", start: 27, end: 33, post: sixDigitDate},
	{name: "value_date", start: 33, end: 39, post: sixDigitDate},
	{name: "code", start: 39, end: 42, post: trimField},
	{name: "description", start: 42, end: 77, post: fixCharset},
	{name: "amount", start: 77, end: 96, post: signedCents},
	{name: "name", start: 96, end: 131, post: fixCharset},
}

// headerFields is the T00 record layout.
var headerFields = []fieldSpec{
	{name: "account", start: 3, end: 20, post: trimField},
	{name: "statement_number", start: 20, end: 26, post: stripZeros},
	{name: "start_date", start: 26, end: 32, post: sixDigitDate},
	{name: "end_date", start: 32, end: 38, post: sixDigitDate},
}

// Name implements Handler.
func (h *FixedWidthHandler) Name() string { return "fixed-width" }

// CanHandle claims files opening with the T00 header record.
func (h *FixedWidthHandler) CanHandle(header []byte) bool {
	return strings.HasPrefix(strings.TrimLeft(string(header), "\r\n"), recHeader)
}

// Decode implements Handler. A record marker outside the supported set
// fails the whole file: unsupported family records as not implemented,
// anything else as invalid.
func (h *FixedWidthHandler) Decode(filename string, content []byte) ([]model.DecodedLine, error) {
	rows := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")

	var (
		lines     []model.DecodedLine
		account   string
		sawHeader bool
	)

	for i, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		if len(row) < 3 {
			return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: truncated record", i+1))
		}

		switch row[:3] {
		case recHeader:
			cols, err := extractFields(row, headerFields)
			if err != nil {
				return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: %v", i+1, err))
			}
			account = cols["account"]
			sawHeader = true

		case recTransaction:
			if !sawHeader {
				return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: transaction before header", i+1))
			}
			cols, err := extractFields(row, transactionFields)
			if err != nil {
				return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: %v", i+1, err))
			}
			cols["account"] = account
			lines = append(lines, model.DecodedLine{
				LineNumber: i + 1,
				RawText:    row,
				Columns:    cols,
			})

		case recExtraInfo:
			if len(lines) == 0 {
				return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: extra info without transaction", i+1))
			}
			if err := attachExtraInfo(&lines[len(lines)-1], row); err != nil {
				return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: %v", i+1, err))
			}

		case recBalance, recTrailer:
			// Running balance and trailer records carry no transactions.

		default:
			if isRecordMarker(row[:3]) {
				return nil, common.NotImplemented(fmt.Sprintf("record type %s in %s line %d", row[:3], filename, i+1))
			}
			return nil, common.InvalidFile(filename, fmt.Sprintf("line %d: unknown record marker %q", i+1, row[:3]))
		}
	}

	if !sawHeader {
		return nil, common.InvalidFile(filename, "missing header record")
	}

	return lines, nil
}

// isRecordMarker reports whether a line opens with a well-formed record
// marker of the interchange family. Such records are recognized but
// unsupported, as opposed to a corrupt file.
func isRecordMarker(marker string) bool {
	if len(marker) != 3 || marker[0] != 'T' {
		return false
	}
	for _, r := range marker[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// attachExtraInfo parses a T11 sub-record and folds its message lines into
// the owning transaction's message column.
func attachExtraInfo(line *model.DecodedLine, row string) error {
	if len(row) < 5 {
		return fmt.Errorf("truncated extra info record")
	}
	// Bytes 3:5 are the info type; the rest is free text in fixed 35-byte
	// chunks.
	var parts []string
	if prev := line.Columns["message"]; prev != "" {
		parts = append(parts, prev)
	}
	text := row[5:]
	for len(text) > 0 {
		chunk := text
		if len(chunk) > 35 {
			chunk = chunk[:35]
			text = text[35:]
		} else {
			text = ""
		}
		fixed, err := fixCharset(chunk)
		if err != nil {
			return err
		}
		if fixed != "" {
			parts = append(parts, fixed)
		}
	}
	line.Columns["message"] = strings.Join(parts, " ")
	line.RawText += "\n" + row
	return nil
}

func extractFields(row string, specs []fieldSpec) (map[string]string, error) {
	cols := make(map[string]string, len(specs))
	for _, spec := range specs {
		if len(row) < spec.end {
			return nil, fmt.Errorf("record too short for field %s", spec.name)
		}
		raw := row[spec.start:spec.end]
		value, err := spec.post(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", spec.name, err)
		}
		cols[spec.name] = value
	}
	return cols, nil
}

func trimField(s string) (string, error) {
	return strings.TrimSpace(s), nil
}

func stripZeros(s string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(s), "0")
	if trimmed == "" && strings.Contains(s, "0") {
		trimmed = "0"
	}
	return trimmed, nil
}

// sixDigitDate converts YYMMDD into ISO form. Years below 70 land in the
// 2000s, matching the interchange format's convention.
func sixDigitDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "000000" {
		return "", nil
	}
	if len(s) != 6 {
		return "", fmt.Errorf("bad date %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("bad date %q", s)
		}
	}
	century := "19"
	if s[:2] < "70" {
		century = "20"
	}
	return fmt.Sprintf("%s%s-%s-%s", century, s[0:2], s[2:4], s[4:6]), nil
}

// signedCents turns a sign byte plus an 18-digit cent field into decimal
// text, e.g. "+000000000000012345" into "123.45".
func signedCents(s string) (string, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("bad amount %q", s)
	}
	sign := s[0]
	if sign != '+' && sign != '-' {
		return "", fmt.Errorf("bad amount sign %q", s)
	}
	digits := strings.TrimLeft(s[1:], "0")
	if digits == "" {
		digits = "0"
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("bad amount %q", s)
		}
	}
	for len(digits) < 3 {
		digits = "0" + digits
	}
	out := digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	if sign == '-' {
		out = "-" + out
	}
	return out, nil
}

// charsetFix maps the legacy national-use bytes back onto the letters the
// originating banks meant.
var charsetFix = strings.NewReplacer(
	"[", "Ä", "]", "Å", "\\", "Ö",
	"{", "ä", "}", "å", "|", "ö",
)

func fixCharset(s string) (string, error) {
	return strings.TrimSpace(charsetFix.Replace(s)), nil
}

// Segmenter implements Handler: the archive id uniquely identifies one
// transaction, so it anchors the segment hash.
func (h *FixedWidthHandler) Segmenter() segment.Strategy {
	return &segment.HashStrategy{
		TimeColumn:  "booking_date",
		Significant: []string{"archive_id", "booking_date", "amount"},
		TimeLayouts: []string{"2006-01-02"},
	}
}

// NumericFields implements Handler.
func (h *FixedWidthHandler) NumericFields() []string { return []string{"amount"} }

// TextFields implements Handler.
func (h *FixedWidthHandler) TextFields() []string {
	return []string{"code", "description", "name", "message"}
}
