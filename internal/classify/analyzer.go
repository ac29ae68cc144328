package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/stock"
)

// Analyzer builds balanced transactions out of a segment's transfers. One
// analyzer serves one pipeline run: it owns the stock ledger and the
// oracle cache for that run.
type Analyzer struct {
	oracles *OracleCache
	stocks  *stock.Ledger
	seeded  map[string]bool
	cfg     model.ProcessConfig
}

// NewAnalyzer creates an analyzer for one run.
func NewAnalyzer(cfg model.ProcessConfig, oracles *OracleCache) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		oracles: oracles,
		stocks:  stock.NewLedger(),
		seeded:  make(map[string]bool),
	}
}

// StockSummary exposes the run's final positions.
func (a *Analyzer) StockSummary() map[string]stock.Position {
	return a.stocks.Summary()
}

// Analyze turns one segment's transfers into a transaction description.
// Exactly one of the three returns is set: a result, a pending question
// for the caller to suspend on, or an error. A rejected segment is never
// partially posted; all state mutations happen only on the success path.
func (a *Analyzer) Analyze(ctx context.Context, seg model.Segment, transfers []model.AssetTransfer, state *model.ProcessState) (*model.TransactionDescription, *model.PendingQuestion, error) {
	if len(transfers) == 0 {
		return &model.TransactionDescription{Transactions: []model.Transaction{}}, nil, nil
	}

	date := seg.Time

	if a.outOfRange(date) {
		switch a.cfg.BadTransactionDates {
		case model.PolicyIgnore:
			return ignoredResult(seg), nil, nil
		case model.PolicyError:
			return nil, nil, fmt.Errorf("%w: %s", common.ErrBadDates, date.Format("2006-01-02"))
		default:
			answer, ok := state.Answer(seg.ID, "badTransactionDates")
			if !ok {
				q := model.NewYesNo(seg.ID, "badTransactionDates",
					fmt.Sprintf("Transaction date %s is outside the period. Create it anyway?", date.Format("2006-01-02")))
				return nil, q, nil
			}
			if !answer.Truthy() {
				return ignoredResult(seg), nil, nil
			}
		}
	}

	// Stock changes apply against a working copy so a suspended or failed
	// segment leaves no trace; the copy commits only on success.
	ledger := a.stocks.Clone()
	seeded := make(map[string]bool, len(a.seeded))
	for k, v := range a.seeded {
		seeded[k] = v
	}

	var (
		entries  []model.Entry
		realized int64
	)

	for _, tr := range transfers {
		account, q, err := a.resolveAccount(ctx, seg.ID, tr.Role(), state)
		if err != nil {
			return nil, nil, err
		}
		if q != nil {
			return nil, q, nil
		}

		cents, err := a.bookCents(ctx, tr, date)
		if err != nil {
			return nil, nil, err
		}

		desc := transferDescription(tr)

		if tr.Type == model.TypeStock {
			gain, adjusted, err := a.applyStock(ctx, ledger, seeded, account, tr, date, cents)
			if err != nil {
				return nil, nil, err
			}
			realized += gain
			data := make(map[string]model.Value, len(tr.Data)+1)
			for k, v := range tr.Data {
				data[k] = v
			}
			data["asset"] = model.String(tr.Asset)
			entries = append(entries, signedEntry(account, adjusted, desc, data))
			continue
		}

		if tr.Type == model.TypeStatement {
			vatEntries, err := a.splitVAT(ctx, account, tr, date, cents, desc)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, vatEntries...)
			continue
		}

		entries = append(entries, signedEntry(account, cents, desc, tr.Data))
	}

	if realized != 0 {
		entry, q, err := a.gainLossEntry(ctx, seg.ID, realized, state)
		if err != nil {
			return nil, nil, err
		}
		if q != nil {
			return nil, q, nil
		}
		entries = append(entries, entry)
	}

	entries = mergeByAccount(entries)

	tx := model.Transaction{
		Date:      date,
		SegmentID: seg.ID,
		Entries:   entries,
	}

	if imbalance := tx.Imbalance(); imbalance != 0 {
		if counterpart, ok := a.cfg.Accounts["account.counterpart"]; ok {
			tx.Entries = append(tx.Entries, signedEntry(counterpart, -imbalance, firstDescription(entries), nil))
		} else if a.cfg.Force {
			slog.Warn("Posting unbalanced transaction on force override",
				"segment", seg.ID, "imbalance", model.CentsToText(imbalance))
		} else {
			return nil, nil, fmt.Errorf("%w: segment %s off by %s",
				common.ErrBalanceViolation, seg.ID, model.CentsToText(imbalance))
		}
	}

	a.stocks = ledger
	a.seeded = seeded

	return &model.TransactionDescription{Transactions: []model.Transaction{tx}}, nil, nil
}

func (a *Analyzer) outOfRange(date time.Time) bool {
	if a.cfg.FirstDate != nil && date.Before(*a.cfg.FirstDate) {
		return true
	}
	if a.cfg.LastDate != nil && date.After(*a.cfg.LastDate) {
		return true
	}
	return false
}

// resolveAccount maps an account role to a concrete account number:
// configuration first, then a stored answer, then the candidate oracle.
func (a *Analyzer) resolveAccount(ctx context.Context, segmentID, role string, state *model.ProcessState) (string, *model.PendingQuestion, error) {
	if number, ok := a.cfg.Accounts[role]; ok {
		return number, nil, nil
	}
	if answer, ok := state.Answer(segmentID, "account."+role); ok {
		return answer.Text(), nil, nil
	}

	candidates, err := a.oracles.AccountCandidates(ctx, role)
	if err != nil {
		return "", nil, err
	}
	if len(candidates) == 1 {
		return candidates[0].Number, nil, nil
	}
	if len(candidates) == 0 && a.cfg.Unrecognized == model.PolicySuspense && a.cfg.SuspenseAccount != "" {
		return a.cfg.SuspenseAccount, nil, nil
	}
	return "", model.NewAccountPicker(segmentID, role, candidates), nil
}

// bookCents converts a transfer amount to book currency. Stock transfers
// already carry book-currency cents; their asset is the instrument.
func (a *Analyzer) bookCents(ctx context.Context, tr model.AssetTransfer, date time.Time) (int64, error) {
	if tr.Type == model.TypeStock || tr.Asset == "" || tr.Asset == a.cfg.Currency {
		return tr.Amount, nil
	}
	rate, err := a.oracles.Rate(ctx, tr.Asset, date)
	if err != nil {
		return 0, err
	}
	return decimal.New(tr.Amount, 0).Mul(decimal.NewFromFloat(rate)).Round(0).IntPart(), nil
}

// applyStock runs the transfer through the cost-basis ledger. The entry
// posted against the stock account carries the cost basis that moved, not
// the proceeds; the difference is the realized gain.
func (a *Analyzer) applyStock(ctx context.Context, ledger *stock.Ledger, seeded map[string]bool, account string, tr model.AssetTransfer, date time.Time, cents int64) (gain, adjusted int64, err error) {
	quantityValue, ok := tr.Data["quantity"]
	if !ok {
		return 0, 0, fmt.Errorf("stock transfer for %s has no quantity", tr.Asset)
	}
	quantity, err := decimal.NewFromString(quantityValue.Text())
	if err != nil {
		return 0, 0, fmt.Errorf("stock transfer for %s: bad quantity %q", tr.Asset, quantityValue.Text())
	}

	key := account + "|" + tr.Asset
	if !seeded[key] {
		seeded[key] = true
		prior, err := a.oracles.Stock(ctx, account, tr.Asset)
		if err != nil {
			return 0, 0, err
		}
		if !prior.Amount.IsZero() || prior.Value != 0 {
			if _, err := ledger.Apply(date, key, stock.Delta{Set: &stock.Set{Amount: prior.Amount, Value: prior.Value}}); err != nil {
				return 0, 0, err
			}
		}
	}

	res, err := ledger.Apply(date, key, stock.Delta{Change: &stock.Change{Amount: quantity, Value: cents}})
	if err != nil {
		return 0, 0, err
	}
	return res.Gain, cents + res.Gain, nil
}

// splitVAT divides a VAT-inclusive statement amount into its net and VAT
// parts, each on its own account.
func (a *Analyzer) splitVAT(ctx context.Context, account string, tr model.AssetTransfer, date time.Time, cents int64, desc string) ([]model.Entry, error) {
	pct, err := a.oracles.VAT(ctx, tr.Reason, date)
	if err != nil {
		return nil, err
	}
	if pct == 0 {
		return []model.Entry{signedEntry(account, cents, desc, tr.Data)}, nil
	}

	gross := decimal.New(cents, 0)
	vat := gross.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromFloat(100 + pct)).Round(0).IntPart()
	net := cents - vat

	vatRole := "vat.payable"
	if cents > 0 {
		// Deductible VAT on purchases.
		vatRole = "vat.receivable"
	}
	vatAccount, ok := a.cfg.Accounts[vatRole]
	if !ok {
		return nil, fmt.Errorf("%w: no account for %s", common.ErrInvalidConfig, vatRole)
	}

	return []model.Entry{
		signedEntry(account, net, desc, tr.Data),
		signedEntry(vatAccount, vat, "VAT "+desc, nil),
	}, nil
}

// gainLossEntry routes the run's realized result for one segment to the
// configured profit or loss account.
func (a *Analyzer) gainLossEntry(ctx context.Context, segmentID string, realized int64, state *model.ProcessState) (model.Entry, *model.PendingQuestion, error) {
	role := "income.gain"
	if realized < 0 {
		role = "expense.loss"
	}
	account, q, err := a.resolveAccount(ctx, segmentID, role, state)
	if err != nil || q != nil {
		return model.Entry{}, q, err
	}
	desc := "Realized gain"
	if realized < 0 {
		desc = "Realized loss"
	}
	return signedEntry(account, -realized, desc, nil), nil, nil
}

// signedEntry builds an entry from signed cents: positive debits,
// negative credits.
func signedEntry(account string, cents int64, description string, data map[string]model.Value) model.Entry {
	entry := model.Entry{
		Account:     account,
		Description: description,
		Amount:      cents,
		Debit:       true,
	}
	if cents < 0 {
		entry.Amount = -cents
		entry.Debit = false
	}
	if len(data) > 0 {
		entry.Data = data
	}
	return entry
}

// mergeByAccount folds entries on the same account into one net entry, so
// a dividend and its withholding tax produce a single cash row. Zero net
// entries drop out.
func mergeByAccount(entries []model.Entry) []model.Entry {
	type slot struct {
		entry model.Entry
		sum   int64
	}
	var order []string
	slots := make(map[string]*slot)

	for _, e := range entries {
		s, ok := slots[e.Account]
		if !ok {
			s = &slot{entry: e}
			slots[e.Account] = s
			order = append(order, e.Account)
		}
		s.sum += e.Signed()
		if s.entry.Description == "" {
			s.entry.Description = e.Description
		}
	}

	merged := make([]model.Entry, 0, len(order))
	for _, account := range order {
		s := slots[account]
		if s.sum == 0 {
			continue
		}
		e := signedEntry(account, s.sum, s.entry.Description, s.entry.Data)
		merged = append(merged, e)
	}
	return merged
}

func transferDescription(tr model.AssetTransfer) string {
	if v, ok := tr.Data["description"]; ok && v.Text() != "" {
		return v.Text()
	}
	return string(tr.Reason) + " " + tr.Asset
}

func firstDescription(entries []model.Entry) string {
	for _, e := range entries {
		if e.Description != "" {
			return e.Description
		}
	}
	return ""
}

func ignoredResult(seg model.Segment) *model.TransactionDescription {
	return &model.TransactionDescription{
		Transactions: []model.Transaction{{
			Date:            seg.Time,
			SegmentID:       seg.ID,
			ExecutionResult: model.ResultIgnored,
		}},
	}
}
