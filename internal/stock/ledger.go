// Package stock maintains per-(account, asset) positions with
// weighted-average cost basis and realizes gain or loss on reductions.
package stock

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// zeroEpsilon absorbs floating rounding noise from historical imports:
// positions whose absolute amount falls below it are treated as exactly
// zero and their residual cents fold into the realized result.
var zeroEpsilon = decimal.New(1, -9)

// Position is the current holding of one asset on one account.
type Position struct {
	Amount decimal.Decimal `json:"amount"`
	// Value is the position's cost basis in integer cents.
	Value int64 `json:"value"`
}

// Zero reports whether the position is empty within epsilon.
func (p Position) Zero() bool {
	return p.Amount.Abs().LessThan(zeroEpsilon) && p.Value == 0
}

// AverageCost returns the cost basis per unit, zero for empty positions.
func (p Position) AverageCost() decimal.Decimal {
	if p.Amount.Abs().LessThan(zeroEpsilon) {
		return decimal.Zero
	}
	return decimal.New(p.Value, -2).Div(p.Amount)
}

// Set establishes an absolute position, used for initial balances and
// corrections.
type Set struct {
	Amount decimal.Decimal
	Value  int64
}

// Change adds a signed quantity and the signed cents that moved with it:
// positive value for acquisition cost, negative for sale proceeds.
type Change struct {
	Amount decimal.Decimal
	Value  int64
}

// Delta is one stock ledger operation: exactly one of Set or Change.
type Delta struct {
	Set    *Set
	Change *Change
}

// Result reports what one Apply realized.
type Result struct {
	Position Position
	// Gain is the realized profit (positive) or loss (negative) in cents,
	// zero for pure acquisitions and sets.
	Gain int64
}

// Ledger tracks positions for one account over one process run. It is
// owned by the classifier for the duration of the run and is not safe for
// concurrent use.
type Ledger struct {
	positions map[string]Position
	// lastApplied enforces in-order application per run.
	lastApplied time.Time
}

// NewLedger creates an empty stock ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]Position)}
}

// Clone copies the ledger so a segment's changes can be discarded when
// its classification suspends or fails partway.
func (l *Ledger) Clone() *Ledger {
	positions := make(map[string]Position, len(l.positions))
	for k, v := range l.positions {
		positions[k] = v
	}
	return &Ledger{positions: positions, lastApplied: l.lastApplied}
}

// Last returns the current position of an asset. Positions are created
// lazily on first reference, so an unknown asset reads as empty.
func (l *Ledger) Last(asset string) Position {
	return l.positions[asset]
}

// Apply executes one operation against an asset's position and returns
// the realized result.
func (l *Ledger) Apply(when time.Time, asset string, delta Delta) (Result, error) {
	if when.Before(l.lastApplied) {
		return Result{}, fmt.Errorf("stock operation at %s arrives after %s: segments must apply in date order",
			when.Format("2006-01-02"), l.lastApplied.Format("2006-01-02"))
	}
	l.lastApplied = when

	switch {
	case delta.Set != nil && delta.Change == nil:
		if delta.Set.Amount.Abs().LessThan(zeroEpsilon) && delta.Set.Value != 0 {
			return Result{}, fmt.Errorf("cannot set %s to an empty position holding %d cents", asset, delta.Set.Value)
		}
		pos := Position{Amount: delta.Set.Amount, Value: delta.Set.Value}
		pos = normalize(pos)
		l.positions[asset] = pos
		return Result{Position: pos}, nil

	case delta.Change != nil && delta.Set == nil:
		return l.applyChange(asset, *delta.Change)

	default:
		return Result{}, fmt.Errorf("delta must carry exactly one of set or change")
	}
}

// applyChange implements the weighted-average method. Additions merge
// into the average cost; reductions remove cost proportionally and
// realize the difference against the cents that moved.
func (l *Ledger) applyChange(asset string, change Change) (Result, error) {
	pos := l.positions[asset]

	sameDirection := pos.Amount.Abs().LessThan(zeroEpsilon) ||
		pos.Amount.Sign() == change.Amount.Sign() ||
		change.Amount.Abs().LessThan(zeroEpsilon)

	if sameDirection {
		pos.Amount = pos.Amount.Add(change.Amount)
		pos.Value += change.Value
		pos = normalize(pos)
		l.positions[asset] = pos
		return Result{Position: pos}, nil
	}

	// Reduction or sign flip.
	reduced := change.Amount.Abs()
	held := pos.Amount.Abs()

	if reduced.LessThanOrEqual(held) {
		// Remove cost proportionally to the quantity leaving the position.
		proportion := reduced.Div(held)
		costOut := decimal.New(pos.Value, 0).Mul(proportion).Round(0).IntPart()
		gain := -change.Value - costOut

		pos.Amount = pos.Amount.Add(change.Amount)
		pos.Value -= costOut
		if pos.Amount.Abs().LessThan(zeroEpsilon) {
			// Residual cents from rounding fold into the result.
			gain += pos.Value
			pos = Position{Amount: decimal.Zero, Value: 0}
		}
		l.positions[asset] = pos
		return Result{Position: pos, Gain: gain}, nil
	}

	// Sign flip: close the whole position, open the remainder in the
	// opposite direction at the transaction price.
	closeFraction := held.Div(reduced)
	closeValue := decimal.New(change.Value, 0).Mul(closeFraction).Round(0).IntPart()
	gain := -closeValue - pos.Value

	remainder := change.Amount.Add(pos.Amount)
	pos = normalize(Position{Amount: remainder, Value: change.Value - closeValue})
	l.positions[asset] = pos
	return Result{Position: pos, Gain: gain}, nil
}

// Summary snapshots all non-zero positions.
func (l *Ledger) Summary() map[string]Position {
	out := make(map[string]Position)
	for asset, pos := range l.positions {
		if pos.Zero() {
			continue
		}
		out[asset] = pos
	}
	return out
}

// Assets lists the assets ever touched, sorted, including zeroed ones.
func (l *Ledger) Assets() []string {
	assets := make([]string, 0, len(l.positions))
	for asset := range l.positions {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

func normalize(pos Position) Position {
	if pos.Amount.Abs().LessThan(zeroEpsilon) {
		return Position{Amount: decimal.Zero, Value: 0}
	}
	return pos
}
