package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain decimal", input: "100.00", want: 10000},
		{name: "negative", input: "-7.50", want: -750},
		{name: "comma decimal separator", input: "1234,56", want: 123456},
		{name: "group spaces", input: "1 234,56", want: 123456},
		{name: "comma thousands with period decimal", input: "1,234.56", want: 123456},
		{name: "integer", input: "42", want: 4200},
		{name: "sub-cent rounds", input: "0.005", want: 1},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCents(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCentsToText(t *testing.T) {
	assert.Equal(t, "100.00", CentsToText(10000))
	assert.Equal(t, "-7.50", CentsToText(-750))
	assert.Equal(t, "0.01", CentsToText(1))
}

func TestValueJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		json  string
	}{
		{name: "string", value: String("deposit"), json: `"deposit"`},
		{name: "number", value: Number(12.5), json: `12.5`},
		{name: "negative number", value: Number(-3), json: `-3`},
		{name: "bool", value: Boolean(true), json: `true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var back Value
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.value, back)
		})
	}
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "deposit", String("deposit").Text())
	assert.Equal(t, "12.5", Number(12.5).Text())
	assert.Equal(t, "true", Boolean(true).Text())
}
