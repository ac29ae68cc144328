package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

func bankLines() []model.DecodedLine {
	return []model.DecodedLine{
		{LineNumber: 1, RawText: "2024-03-01,deposit,100.00", Columns: map[string]string{"date": "2024-03-01", "type": "deposit", "amount": "100.00"}},
		{LineNumber: 2, RawText: "2024-03-02,withdrawal,-20.00", Columns: map[string]string{"date": "2024-03-02", "type": "withdrawal", "amount": "-20.00"}},
	}
}

func TestAssignHashStrategy(t *testing.T) {
	strategy := &HashStrategy{
		TimeColumn:  "date",
		Significant: []string{"date", "type", "amount"},
	}

	files := map[string][]model.DecodedLine{"bank.csv": bankLines()}
	res, err := Assign(files, map[string]Strategy{"bank.csv": strategy})
	require.NoError(t, err)

	assert.Len(t, res.Segments, 2)
	assert.Empty(t, res.Orphans)

	// Segment ids get attached to the lines themselves.
	for _, line := range files["bank.csv"] {
		assert.NotEmpty(t, line.SegmentID)
		seg, ok := res.Segments[line.SegmentID]
		require.True(t, ok)
		assert.Equal(t, []model.LineRef{{File: "bank.csv", Line: line.LineNumber}}, seg.Lines)
	}

	first := files["bank.csv"][0]
	require.NotNil(t, first.Time)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *first.Time)
}

func TestAssignIsIdempotent(t *testing.T) {
	strategy := &HashStrategy{TimeColumn: "date", Significant: []string{"date", "type", "amount"}}

	filesA := map[string][]model.DecodedLine{"bank.csv": bankLines()}
	filesB := map[string][]model.DecodedLine{"bank.csv": bankLines()}

	resA, err := Assign(filesA, map[string]Strategy{"bank.csv": strategy})
	require.NoError(t, err)
	resB, err := Assign(filesB, map[string]Strategy{"bank.csv": strategy})
	require.NoError(t, err)

	assert.Equal(t, resA.Segments, resB.Segments)
	assert.Equal(t, filesA, filesB)
}

func TestAssignMissingStrategy(t *testing.T) {
	files := map[string][]model.DecodedLine{"bank.csv": bankLines()}
	_, err := Assign(files, map[string]Strategy{})
	assert.Error(t, err)
}

func dividendStrategy() *PairingStrategy {
	return &PairingStrategy{
		Primary: func(line model.DecodedLine) bool {
			return line.Column("type") != "Withholding Tax"
		},
		PairKey: func(line model.DecodedLine) (string, bool) {
			isin := line.Column("isin")
			if isin == "" {
				return "", false
			}
			return line.Column("date") + ":" + isin, true
		},
		Fallback: &HashStrategy{TimeColumn: "date"},
	}
}

func TestPairingDividendAndWithholdingTax(t *testing.T) {
	lines := []model.DecodedLine{
		{LineNumber: 1, Columns: map[string]string{"date": "2024-03-15", "type": "Dividends", "isin": "US0378331005", "amount": "50.00"}},
		{LineNumber: 2, Columns: map[string]string{"date": "2024-03-15", "type": "Withholding Tax", "isin": "US0378331005", "amount": "-7.50"}},
		{LineNumber: 3, Columns: map[string]string{"date": "2024-03-16", "type": "Dividends", "isin": "FI0009000681", "amount": "12.00"}},
	}

	files := map[string][]model.DecodedLine{"broker.tsv": lines}
	res, err := Assign(files, map[string]Strategy{"broker.tsv": dividendStrategy()})
	require.NoError(t, err)

	assert.Len(t, res.Segments, 2)
	assert.Empty(t, res.Adjustments)

	got := files["broker.tsv"]
	assert.Equal(t, got[0].SegmentID, got[1].SegmentID, "dividend and its withholding tax must share a segment")
	assert.NotEqual(t, got[0].SegmentID, got[2].SegmentID)

	shared := res.Segments[got[0].SegmentID]
	assert.Len(t, shared.Lines, 2)
}

func TestPairingSecondaryWithoutPrimary(t *testing.T) {
	lines := []model.DecodedLine{
		{LineNumber: 1, Columns: map[string]string{"date": "2024-03-15", "type": "Withholding Tax", "isin": "US0378331005", "amount": "-7.50"}},
	}

	files := map[string][]model.DecodedLine{"broker.tsv": lines}
	res, err := Assign(files, map[string]Strategy{"broker.tsv": dividendStrategy()})
	require.NoError(t, err)

	assert.Len(t, res.Segments, 1)
	assert.Equal(t, []model.LineRef{{File: "broker.tsv", Line: 1}}, res.Adjustments)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{input: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{input: "01.02.2024", want: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{input: "2024-03-01 12:30:00", want: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), ok: true},
		{input: "not a date", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseTime(tt.input, nil)
		assert.Equal(t, tt.ok, ok, tt.input)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.input)
		}
	}
}
