package connector

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// MockConnector is a test double with function hooks and call tracking.
type MockConnector struct {
	// Functions tests set to control behavior.
	ResultExistsFn         func(ctx context.Context, tx model.Transaction) (bool, error)
	ApplyResultFn          func(ctx context.Context, processID string, descs []model.TransactionDescription) (ApplyStats, error)
	RollbackFn             func(ctx context.Context, processID string) (bool, error)
	GetRateFn              func(ctx context.Context, asset string, when time.Time) (float64, error)
	GetVATFn               func(ctx context.Context, reason model.TransferReason, when time.Time) (float64, error)
	GetStockFn             func(ctx context.Context, account, asset string) (StockBalance, error)
	GetAccountCandidatesFn func(ctx context.Context, role string) ([]model.AccountCandidate, error)
	InitializeBalancesFn   func(ctx context.Context, when time.Time, balances map[string]int64) error

	// Call tracking.
	RateCalls       []string
	VATCalls        []string
	AccountCalls    []string
	ApplyCalls      int
	RollbackCalls   int
	ExistenceChecks int
}

// NewMockConnector creates a mock with benign defaults: no duplicates,
// rate 1.0, no VAT, empty stock, no account candidates.
func NewMockConnector() *MockConnector {
	return &MockConnector{}
}

// ResultExists implements Connector.
func (m *MockConnector) ResultExists(ctx context.Context, tx model.Transaction) (bool, error) {
	m.ExistenceChecks++
	if m.ResultExistsFn != nil {
		return m.ResultExistsFn(ctx, tx)
	}
	return false, nil
}

// ApplyResult implements Connector.
func (m *MockConnector) ApplyResult(ctx context.Context, processID string, descs []model.TransactionDescription) (ApplyStats, error) {
	m.ApplyCalls++
	if m.ApplyResultFn != nil {
		return m.ApplyResultFn(ctx, processID, descs)
	}
	stats := ApplyStats{}
	for _, desc := range descs {
		for i := range desc.Transactions {
			switch desc.Transactions[i].ExecutionResult {
			case model.ResultDuplicate:
				stats.Duplicates++
			case model.ResultIgnored, model.ResultSkipped:
			default:
				desc.Transactions[i].ExecutionResult = model.ResultCreated
				stats.Created++
			}
		}
	}
	return stats, nil
}

// Rollback implements Connector.
func (m *MockConnector) Rollback(ctx context.Context, processID string) (bool, error) {
	m.RollbackCalls++
	if m.RollbackFn != nil {
		return m.RollbackFn(ctx, processID)
	}
	return false, nil
}

// GetRate implements Connector.
func (m *MockConnector) GetRate(ctx context.Context, asset string, when time.Time) (float64, error) {
	m.RateCalls = append(m.RateCalls, asset+":"+when.Format("2006-01-02"))
	if m.GetRateFn != nil {
		return m.GetRateFn(ctx, asset, when)
	}
	return 1.0, nil
}

// GetVAT implements Connector.
func (m *MockConnector) GetVAT(ctx context.Context, reason model.TransferReason, when time.Time) (float64, error) {
	m.VATCalls = append(m.VATCalls, string(reason))
	if m.GetVATFn != nil {
		return m.GetVATFn(ctx, reason, when)
	}
	return 0, nil
}

// GetStock implements Connector.
func (m *MockConnector) GetStock(ctx context.Context, account, asset string) (StockBalance, error) {
	if m.GetStockFn != nil {
		return m.GetStockFn(ctx, account, asset)
	}
	return StockBalance{Amount: decimal.Zero}, nil
}

// GetAccountCandidates implements Connector.
func (m *MockConnector) GetAccountCandidates(ctx context.Context, role string) ([]model.AccountCandidate, error) {
	m.AccountCalls = append(m.AccountCalls, role)
	if m.GetAccountCandidatesFn != nil {
		return m.GetAccountCandidatesFn(ctx, role)
	}
	return nil, nil
}

// InitializeBalances implements Connector.
func (m *MockConnector) InitializeBalances(ctx context.Context, when time.Time, balances map[string]int64) error {
	if m.InitializeBalancesFn != nil {
		return m.InitializeBalancesFn(ctx, when, balances)
	}
	return nil
}
