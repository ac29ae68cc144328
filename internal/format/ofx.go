package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/segment"
)

// OFXHandler decodes OFX/QFX bank and credit card statements.
type OFXHandler struct{}

// NewOFX creates the OFX statement handler.
func NewOFX() *OFXHandler {
	return &OFXHandler{}
}

// Name implements Handler.
func (h *OFXHandler) Name() string { return "ofx" }

// CanHandle claims both SGML-style and XML-style OFX files.
func (h *OFXHandler) CanHandle(header []byte) bool {
	text := strings.TrimLeft(string(header), " \t\r\n")
	return strings.HasPrefix(text, "OFXHEADER") ||
		strings.Contains(text, "<OFX>") ||
		strings.Contains(text, "?OFX")
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess fixes common formatting issues in bank-exported OFX files:
// mixed-case severity values and SGML tags missing their closing bracket.
func (h *OFXHandler) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// Decode implements Handler.
func (h *OFXHandler) Decode(filename string, content []byte) ([]model.DecodedLine, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(h.preprocess(string(content))))
	if err != nil {
		return nil, common.InvalidFile(filename, err.Error())
	}

	var lines []model.DecodedLine
	number := 0

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		account := string(stmt.BankAcctFrom.AcctID)
		for _, tx := range stmt.BankTranList.Transactions {
			number++
			lines = append(lines, h.convert(tx, account, number))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		account := string(stmt.CCAcctFrom.AcctID)
		for _, tx := range stmt.BankTranList.Transactions {
			number++
			lines = append(lines, h.convert(tx, account, number))
		}
	}

	if len(lines) == 0 {
		return nil, common.InvalidFile(filename, "no statement transactions")
	}

	return lines, nil
}

func (h *OFXHandler) convert(tx ofxgo.Transaction, account string, number int) model.DecodedLine {
	name := strings.TrimSpace(string(tx.Name))
	if payee := tx.Payee; payee != nil {
		if s := strings.TrimSpace(string(payee.Name)); s != "" {
			name = s
		}
	}

	columns := map[string]string{
		"id":      string(tx.FiTID),
		"date":    tx.DtPosted.Time.Format("2006-01-02"),
		"amount":  tx.TrnAmt.String(),
		"name":    name,
		"memo":    strings.TrimSpace(string(tx.Memo)),
		"type":    fmt.Sprintf("%v", tx.TrnType),
		"account": account,
	}

	return model.DecodedLine{
		LineNumber: number,
		RawText:    columns["id"] + " " + columns["name"] + " " + columns["amount"],
		Columns:    columns,
	}
}

// Segmenter implements Handler: the financial institution's transaction
// id is unique, so it anchors the segment hash.
func (h *OFXHandler) Segmenter() segment.Strategy {
	return &segment.HashStrategy{
		TimeColumn:  "date",
		Significant: []string{"id", "date", "amount", "account"},
		TimeLayouts: []string{"2006-01-02"},
	}
}

// NumericFields implements Handler.
func (h *OFXHandler) NumericFields() []string { return []string{"amount"} }

// TextFields implements Handler.
func (h *OFXHandler) TextFields() []string { return []string{"name", "memo", "type"} }
