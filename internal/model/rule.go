package model

// FilterOp is a predicate operator over one column of a decoded line.
type FilterOp string

// Filter operator constants. Numeric operators apply to numeric-typed
// fields only; text operators to the configured text fields.
const (
	FilterGreaterThan      FilterOp = "gt"
	FilterLessThan         FilterOp = "lt"
	FilterEquals           FilterOp = "eq"
	FilterEqualsIgnoreCase FilterOp = "ieq"
	FilterContains         FilterOp = "contains"
	FilterContainsIgnoreCase FilterOp = "icontains"
)

// FilterExpression is one boolean predicate over a line's columns. A rule
// matches only when every one of its filter expressions is true.
type FilterExpression struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value string   `json:"value"`
}

// TemplateOp selects how a result template fills one transfer field.
type TemplateOp string

// Template operator constants.
const (
	OpSetLiteral       TemplateOp = "setLiteral"
	OpCopyField        TemplateOp = "copyField"
	OpCopyInverseField TemplateOp = "copyInverseField"
)

// FieldSource produces one field of an asset transfer, either from a
// literal or from a named source column of the matched line.
type FieldSource struct {
	Op    TemplateOp `json:"op"`
	Value string     `json:"value"`
}

// Literal is shorthand for a setLiteral field source.
func Literal(v string) FieldSource {
	return FieldSource{Op: OpSetLiteral, Value: v}
}

// FromColumn is shorthand for a copyField field source.
func FromColumn(column string) FieldSource {
	return FieldSource{Op: OpCopyField, Value: column}
}

// FromColumnInverse is shorthand for a copyInverseField field source.
func FromColumnInverse(column string) FieldSource {
	return FieldSource{Op: OpCopyInverseField, Value: column}
}

// ResultTemplate produces one AssetTransfer from a matched line.
type ResultTemplate struct {
	Data   map[string]FieldSource `json:"data,omitempty"`
	Reason FieldSource            `json:"reason"`
	Type   FieldSource            `json:"type"`
	Asset  FieldSource            `json:"asset"`
	Amount FieldSource            `json:"amount"`
	Tags   []string               `json:"tags,omitempty"`
}

// Rule maps raw lines onto typed asset transfers. Rules are evaluated in
// order and the first full match wins; there is no rule stacking.
type Rule struct {
	Name   string             `json:"name"`
	Filter []FilterExpression `json:"filter"`
	Result []ResultTemplate   `json:"result"`
}
