package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntrySigned(t *testing.T) {
	debit := Entry{Account: "1910", Amount: 10000, Debit: true}
	credit := Entry{Account: "9999", Amount: 10000, Debit: false}

	assert.Equal(t, int64(10000), debit.Signed())
	assert.Equal(t, int64(-10000), credit.Signed())
}

func TestTransactionImbalance(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    int64
	}{
		{
			name: "balanced pair",
			entries: []Entry{
				{Account: "1910", Amount: 10000, Debit: true},
				{Account: "3000", Amount: 10000, Debit: false},
			},
			want: 0,
		},
		{
			name: "balanced three entries",
			entries: []Entry{
				{Account: "1910", Amount: 4250, Debit: true},
				{Account: "9930", Amount: 750, Debit: true},
				{Account: "7800", Amount: 5000, Debit: false},
			},
			want: 0,
		},
		{
			name: "one cent off",
			entries: []Entry{
				{Account: "1910", Amount: 10001, Debit: true},
				{Account: "3000", Amount: 10000, Debit: false},
			},
			want: 1,
		},
		{
			name: "empty",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{Date: time.Now(), Entries: tt.entries}
			assert.Equal(t, tt.want, tx.Imbalance())
		})
	}
}

func TestProcessStateRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	state := &ProcessState{
		ProcessID: "p-1",
		Stage:     StageWaiting,
		ResumeStage: StageClassified,
		Files: map[string][]DecodedLine{
			"bank.csv": {
				{LineNumber: 1, RawText: "deposit,100.00", Columns: map[string]string{"type": "deposit", "amount": "100.00"}, SegmentID: "seg-1", Time: &when},
			},
		},
		Segments: map[string]Segment{
			"seg-1": {ID: "seg-1", Time: when, Lines: []LineRef{{File: "bank.csv", Line: 1}}},
		},
		Transfers: map[string][]AssetTransfer{
			"seg-1": {{Reason: ReasonIncome, Type: TypeAccount, Asset: "EUR", Amount: 10000}},
		},
		Result: map[string][]TransactionDescription{
			"seg-1": {{Transactions: []Transaction{{
				Date:      when,
				SegmentID: "seg-1",
				Entries: []Entry{
					{Account: "1910", Amount: 10000, Debit: true, Description: "Deposit"},
					{Account: "9999", Amount: 10000, Debit: false, Description: "Deposit"},
				},
			}}}},
		},
		Answers: map[string]map[string]Value{
			"seg-1": {"badTransactionDates": Boolean(true)},
		},
		Directions: &Directions{
			Type:    "ui",
			Element: UIElement{Type: ElementYesNo, SegmentID: "seg-1", Question: "Allow transaction outside period?"},
		},
	}

	data, err := state.Serialize()
	require.NoError(t, err)

	back, err := DeserializeState(data)
	require.NoError(t, err)
	assert.Equal(t, state, back)
}

func TestMergeAnswer(t *testing.T) {
	state := &ProcessState{}
	state.MergeAnswer("seg-1", "rule", String("one-off"))

	v, ok := state.Answer("seg-1", "rule")
	require.True(t, ok)
	assert.Equal(t, String("one-off"), v)

	_, ok = state.Answer("seg-1", "missing")
	assert.False(t, ok)

	_, ok = state.Answer("seg-2", "rule")
	assert.False(t, ok)
}
