package model

// TransferReason states why an asset moved.
type TransferReason string

// Transfer reason constants.
const (
	ReasonIncome     TransferReason = "income"
	ReasonExpense    TransferReason = "expense"
	ReasonInvestment TransferReason = "investment"
	ReasonTrade      TransferReason = "trade"
	ReasonDividend   TransferReason = "dividend"
	ReasonTax        TransferReason = "tax"
	ReasonFee        TransferReason = "fee"
	ReasonTransfer   TransferReason = "transfer"
	ReasonOther      TransferReason = "other"
)

// TransferType states which kind of resource the transfer touches.
type TransferType string

// Transfer type constants.
const (
	TypeAccount   TransferType = "account"
	TypeStatement TransferType = "statement"
	TypeStock     TransferType = "stock"
	TypeExternal  TransferType = "external"
)

// AssetTransfer is one leg of economic movement inside a segment.
// Amount is signed integer cents: positive means inflow to the described
// resource, matching the debit/credit convention downstream.
type AssetTransfer struct {
	Data   map[string]Value `json:"data,omitempty"`
	Reason TransferReason   `json:"reason"`
	Type   TransferType     `json:"type"`
	Asset  string           `json:"asset"`
	Tags   []string         `json:"tags,omitempty"`
	Amount int64            `json:"amount"`
}

// Role names the account-mapping key this transfer resolves through,
// e.g. "account.expense" or "statement.income".
func (t AssetTransfer) Role() string {
	return string(t.Type) + "." + string(t.Reason)
}

// HasTag reports whether the transfer carries the given tag.
func (t AssetTransfer) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}
