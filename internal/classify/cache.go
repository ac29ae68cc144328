// Package classify turns a segment's resolved transfers into balanced
// ledger transactions, consulting the connector's oracles.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/connector"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// OracleCache is a read-through cache over the connector's oracles. It is
// owned by one pipeline run, never shared: caching within the run keeps
// stage re-evaluation deterministic on replay and holds each distinct
// query to at most one connector call.
type OracleCache struct {
	conn     connector.Connector
	rates    map[string]float64
	vats     map[string]float64
	stocks   map[string]connector.StockBalance
	accounts map[string][]model.AccountCandidate
}

// NewOracleCache creates a cache over the given connector.
func NewOracleCache(conn connector.Connector) *OracleCache {
	return &OracleCache{
		conn:     conn,
		rates:    make(map[string]float64),
		vats:     make(map[string]float64),
		stocks:   make(map[string]connector.StockBalance),
		accounts: make(map[string][]model.AccountCandidate),
	}
}

// Rate resolves the asset's conversion rate to book currency on a date.
func (c *OracleCache) Rate(ctx context.Context, asset string, when time.Time) (float64, error) {
	key := asset + "|" + when.Format("2006-01-02")
	if rate, ok := c.rates[key]; ok {
		return rate, nil
	}
	rate, err := c.conn.GetRate(ctx, asset, when)
	if err != nil {
		return 0, fmt.Errorf("%w: rate for %s: %v", common.ErrOracleFailure, asset, err)
	}
	c.rates[key] = rate
	return rate, nil
}

// VAT resolves the VAT percentage for a transfer reason on a date.
func (c *OracleCache) VAT(ctx context.Context, reason model.TransferReason, when time.Time) (float64, error) {
	key := string(reason) + "|" + when.Format("2006-01-02")
	if pct, ok := c.vats[key]; ok {
		return pct, nil
	}
	pct, err := c.conn.GetVAT(ctx, reason, when)
	if err != nil {
		return 0, fmt.Errorf("%w: VAT for %s: %v", common.ErrOracleFailure, reason, err)
	}
	c.vats[key] = pct
	return pct, nil
}

// Stock resolves the prior position of an asset on an account.
func (c *OracleCache) Stock(ctx context.Context, account, asset string) (connector.StockBalance, error) {
	key := account + "|" + asset
	if pos, ok := c.stocks[key]; ok {
		return pos, nil
	}
	pos, err := c.conn.GetStock(ctx, account, asset)
	if err != nil {
		return connector.StockBalance{}, fmt.Errorf("%w: stock %s on %s: %v", common.ErrOracleFailure, asset, account, err)
	}
	c.stocks[key] = pos
	return pos, nil
}

// AccountCandidates resolves the accounts that can serve a role.
func (c *OracleCache) AccountCandidates(ctx context.Context, role string) ([]model.AccountCandidate, error) {
	if cands, ok := c.accounts[role]; ok {
		return cands, nil
	}
	cands, err := c.conn.GetAccountCandidates(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("%w: account candidates for %s: %v", common.ErrOracleFailure, role, err)
	}
	c.accounts[role] = cands
	return cands, nil
}
