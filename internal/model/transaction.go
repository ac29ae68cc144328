package model

import (
	"time"
)

// ExecutionResult records what happened to a transaction at posting time.
type ExecutionResult string

// Execution result constants.
const (
	ResultCreated   ExecutionResult = "created"
	ResultIgnored   ExecutionResult = "ignored"
	ResultSkipped   ExecutionResult = "skipped"
	ResultDuplicate ExecutionResult = "duplicate"
)

// Entry is one row of a double-entry transaction. Amount is always a
// non-negative integer in minor currency units; the side is carried by
// Debit. Floating point never enters the pipeline after decoding.
type Entry struct {
	Data        map[string]Value `json:"data,omitempty"`
	Account     string           `json:"account"`
	Description string           `json:"description"`
	Amount      int64            `json:"amount"`
	Debit       bool             `json:"debit"`
}

// Signed returns the entry amount with the debit/credit sign applied:
// debits positive, credits negative.
func (e Entry) Signed() int64 {
	if e.Debit {
		return e.Amount
	}
	return -e.Amount
}

// Transaction is one balanced ledger transaction produced from a segment.
type Transaction struct {
	Date            time.Time       `json:"date"`
	SegmentID       string          `json:"segment_id"`
	ExecutionResult ExecutionResult `json:"execution_result,omitempty"`
	Entries         []Entry         `json:"entries"`
}

// Imbalance returns the signed sum over all entries. Zero means the
// double-entry balance invariant holds.
func (t Transaction) Imbalance() int64 {
	var sum int64
	for _, e := range t.Entries {
		sum += e.Signed()
	}
	return sum
}

// TransactionDescription is the classifier output for one segment: zero
// or more transactions, possibly empty when the segment was ignored.
type TransactionDescription struct {
	Transactions []Transaction `json:"transactions"`
}
