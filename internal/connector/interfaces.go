// Package connector defines the boundary between the import pipeline and
// the ledger it posts into, plus the oracles the classifier consults.
package connector

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// StockBalance is a prior cost-basis position reported by the ledger.
type StockBalance struct {
	Amount decimal.Decimal `json:"amount"`
	Value  int64           `json:"value"`
}

// ApplyStats reports what one ApplyResult call posted.
type ApplyStats struct {
	Created    int
	Duplicates int
}

// Connector is consumed, never implemented, by the pipeline core. It
// covers duplicate screening, atomic posting, rollback and the external
// lookup oracles. Oracle failures are fatal for the run; the pipeline
// never substitutes a guessed financial value.
type Connector interface {
	// ResultExists screens a candidate transaction against the ledger:
	// first by same-segment-already-recorded lookup, then by exact-match
	// intersection over date, account, description and amount for every
	// entry, requiring all entries to agree on one shared prior document.
	ResultExists(ctx context.Context, tx model.Transaction) (bool, error)

	// ApplyResult posts transactions idempotently, skipping any already
	// marked ignored, skipped or duplicate, and records the documents it
	// creates under the process id for later rollback.
	ApplyResult(ctx context.Context, processID string, descs []model.TransactionDescription) (ApplyStats, error)

	// Rollback deletes every document the process created, in an order
	// safe against reference dependencies. Returns false when the process
	// has nothing to undo.
	Rollback(ctx context.Context, processID string) (bool, error)

	// GetRate returns the conversion rate from the asset to the book
	// currency on the given date.
	GetRate(ctx context.Context, asset string, when time.Time) (float64, error)

	// GetVAT returns the VAT percentage applicable to a transfer reason
	// on the given date.
	GetVAT(ctx context.Context, reason model.TransferReason, when time.Time) (float64, error)

	// GetStock returns the prior cost-basis position of an asset on an
	// account, for reconstructing the stock ledger when resuming.
	GetStock(ctx context.Context, account, asset string) (StockBalance, error)

	// GetAccountCandidates lists the ledger accounts that can serve an
	// account role such as "statement.income".
	GetAccountCandidates(ctx context.Context, role string) ([]model.AccountCandidate, error)

	// InitializeBalances prepares opening balances before the first
	// posting of a period.
	InitializeBalances(ctx context.Context, when time.Time, balances map[string]int64) error
}
