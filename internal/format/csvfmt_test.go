package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
)

const bankCSV = `date,type,amount,balance
2024-03-01,deposit,100.00,100.00
2024-03-02,withdrawal,-20.00,80.00
`

func TestBankCSVCanHandle(t *testing.T) {
	h := NewBankCSV()

	assert.True(t, h.CanHandle([]byte(bankCSV)))
	assert.True(t, h.CanHandle([]byte("Type,Amount,Extra\n")))
	assert.False(t, h.CanHandle([]byte("T00312345")))
	assert.False(t, h.CanHandle([]byte("")))
	assert.False(t, h.CanHandle([]byte("foo,bar\n1,2\n")))
}

func TestBankCSVDecode(t *testing.T) {
	h := NewBankCSV()

	lines, err := h.Decode("bank.csv", []byte(bankCSV))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, 2, lines[0].LineNumber)
	assert.Equal(t, "deposit", lines[0].Column("type"))
	assert.Equal(t, "100.00", lines[0].Column("amount"))
	assert.Equal(t, "100.00", lines[0].Column("balance"))
	assert.Equal(t, "withdrawal", lines[1].Column("type"))
	assert.Equal(t, "-20.00", lines[1].Column("amount"))
}

func TestBankCSVDecodeRejectsRaggedRows(t *testing.T) {
	h := NewBankCSV()

	_, err := h.Decode("bank.csv", []byte("date,type,amount,balance\n2024-03-01,deposit\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidFile)
}

func TestBankCSVDecodeEmptyFile(t *testing.T) {
	h := NewBankCSV()

	_, err := h.Decode("bank.csv", []byte(""))
	assert.ErrorIs(t, err, common.ErrInvalidFile)
}

func TestCSVHeadingNormalization(t *testing.T) {
	h := NewCSV(CSVConfig{
		FormatName: "test",
		HasHeader:  true,
		TrimSpace:  true,
		Required:   []string{"transaction_type"},
	})

	lines, err := h.Decode("x.csv", []byte("\"Transaction Type\",Amount\ndeposit,5\n"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "deposit", lines[0].Column("transaction_type"))
	assert.Equal(t, "5", lines[0].Column("amount"))
}

func TestRegistryFindsByPriority(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name    string
		content string
		format  string
	}{
		{name: "fixed width", content: "T00000000012345678   ", format: "fixed-width"},
		{name: "bank csv", content: bankCSV, format: "bank-csv"},
		{name: "ofx sgml", content: "OFXHEADER:100\nDATA:OFXSGML\n", format: "ofx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.Find("input", []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.format, h.Name())
		})
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Find("input", []byte("totally unrecognizable content"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidFile)
}
