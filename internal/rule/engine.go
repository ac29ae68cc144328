// Package rule evaluates declarative import rules against decoded lines,
// turning raw columns into typed asset transfers.
package rule

import (
	"fmt"
	"strings"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// FieldTypes declares which columns numeric and text filters may target.
// They come from the format handler that decoded the lines.
type FieldTypes struct {
	Numeric []string
	Text    []string
}

// Engine evaluates an ordered rule set. Rules execute in priority order
// and the first full match wins, so evaluation is deterministic.
type Engine struct {
	rules  []model.Rule
	fields FieldTypes
}

// NewEngine creates an engine over the given rule set and field typing.
func NewEngine(rules []model.Rule, fields FieldTypes) *Engine {
	return &Engine{rules: rules, fields: fields}
}

// Fields exposes the engine's column typing, so a one-off rule can be
// evaluated with the same typing as the permanent set.
func (e *Engine) Fields() FieldTypes {
	return e.fields
}

// Evaluate matches the line against the rule set. On a match it returns
// the produced transfers; on no match it returns (nil, nil) and the
// caller raises the rule editor question. Malformed rules fail hard.
func (e *Engine) Evaluate(line model.DecodedLine) ([]model.AssetTransfer, error) {
	for _, r := range e.rules {
		matched, err := e.matches(r, line)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if !matched {
			continue
		}
		transfers, err := e.produce(r, line)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		return transfers, nil
	}
	return nil, nil
}

// EditorElement builds the interactive question raised when no rule
// matches a segment's lines. The partial templates give the UI a starting
// point it can refine into a permanent rule or a one-off answer.
func (e *Engine) EditorElement(segmentID string, lines []model.DecodedLine, templates []model.ResultTemplate) *model.PendingQuestion {
	return model.NewRuleEditor(segmentID, lines, e.fields.Numeric, e.fields.Text, templates)
}

// matches reports whether every filter predicate holds for the line.
func (e *Engine) matches(r model.Rule, line model.DecodedLine) (bool, error) {
	if len(r.Filter) == 0 {
		return false, fmt.Errorf("rule has no filter")
	}
	for _, f := range r.Filter {
		ok, err := e.predicate(f, line)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) predicate(f model.FilterExpression, line model.DecodedLine) (bool, error) {
	raw, present := line.Columns[f.Field]

	switch f.Op {
	case model.FilterGreaterThan, model.FilterLessThan:
		if !contains(e.fields.Numeric, f.Field) {
			return false, fmt.Errorf("numeric filter on non-numeric field %q", f.Field)
		}
		if !present || raw == "" {
			return false, nil
		}
		have, err := model.ParseCents(raw)
		if err != nil {
			return false, nil
		}
		want, err := model.ParseCents(f.Value)
		if err != nil {
			return false, fmt.Errorf("bad numeric literal %q: %w", f.Value, err)
		}
		if f.Op == model.FilterGreaterThan {
			return have > want, nil
		}
		return have < want, nil

	case model.FilterEquals:
		return present && raw == f.Value, nil
	case model.FilterEqualsIgnoreCase:
		return present && strings.EqualFold(raw, f.Value), nil
	case model.FilterContains:
		return present && strings.Contains(raw, f.Value), nil
	case model.FilterContainsIgnoreCase:
		return present && strings.Contains(strings.ToLower(raw), strings.ToLower(f.Value)), nil

	default:
		return false, fmt.Errorf("unknown filter operator %q", f.Op)
	}
}

// produce instantiates every result template of a matched rule.
func (e *Engine) produce(r model.Rule, line model.DecodedLine) ([]model.AssetTransfer, error) {
	if len(r.Result) == 0 {
		return nil, fmt.Errorf("rule has no result templates")
	}
	transfers := make([]model.AssetTransfer, 0, len(r.Result))
	for i, tmpl := range r.Result {
		transfer, err := Instantiate(tmpl, line)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// Instantiate fills one asset transfer from a result template and a line.
func Instantiate(tmpl model.ResultTemplate, line model.DecodedLine) (model.AssetTransfer, error) {
	reason, err := textField(tmpl.Reason, line)
	if err != nil {
		return model.AssetTransfer{}, fmt.Errorf("reason: %w", err)
	}
	typ, err := textField(tmpl.Type, line)
	if err != nil {
		return model.AssetTransfer{}, fmt.Errorf("type: %w", err)
	}
	asset, err := textField(tmpl.Asset, line)
	if err != nil {
		return model.AssetTransfer{}, fmt.Errorf("asset: %w", err)
	}
	amount, err := amountField(tmpl.Amount, line)
	if err != nil {
		return model.AssetTransfer{}, fmt.Errorf("amount: %w", err)
	}

	transfer := model.AssetTransfer{
		Reason: model.TransferReason(reason),
		Type:   model.TransferType(typ),
		Asset:  asset,
		Amount: amount,
	}
	if len(tmpl.Tags) > 0 {
		transfer.Tags = append([]string(nil), tmpl.Tags...)
	}
	if len(tmpl.Data) > 0 {
		transfer.Data = make(map[string]model.Value, len(tmpl.Data))
		for k, src := range tmpl.Data {
			v, err := textField(src, line)
			if err != nil {
				return model.AssetTransfer{}, fmt.Errorf("data %s: %w", k, err)
			}
			transfer.Data[k] = model.String(v)
		}
	}
	return transfer, nil
}

func textField(src model.FieldSource, line model.DecodedLine) (string, error) {
	switch src.Op {
	case model.OpSetLiteral:
		return src.Value, nil
	case model.OpCopyField:
		return line.Column(src.Value), nil
	case model.OpCopyInverseField:
		return "", fmt.Errorf("copyInverseField applies to amounts only")
	default:
		return "", fmt.Errorf("unknown template operator %q", src.Op)
	}
}

func amountField(src model.FieldSource, line model.DecodedLine) (int64, error) {
	switch src.Op {
	case model.OpSetLiteral:
		return model.ParseCents(src.Value)
	case model.OpCopyField:
		return model.ParseCents(line.Column(src.Value))
	case model.OpCopyInverseField:
		cents, err := model.ParseCents(line.Column(src.Value))
		if err != nil {
			return 0, err
		}
		return -cents, nil
	default:
		return 0, fmt.Errorf("unknown template operator %q", src.Op)
	}
}

func contains(fields []string, want string) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}
