package idl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldOffset(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	tests := []struct {
		account string
		field   string
		want    int
	}{
		{"Collection", "authority", 8},
		{"Collection", "mint", 40},
		{"Collection", "config", 72},
		{"Collection", "bump", 81},
		{"Loan", "state", 8},
		{"Loan", "borrower", 9},
		{"Loan", "mint", 41},
		{"Loan", "basisPoints", 73},
		{"Loan", "amount", 85},
		{"LoanOffer", "lender", 9},
		{"LoanOffer", "collection", 41},
		{"CallOption", "seller", 9},
		{"CallOptionBid", "buyer", 9},
		{"CallOptionBid", "collection", 41},
		{"Rental", "lender", 9},
		{"Rental", "mint", 41},
	}

	for _, tt := range tests {
		t.Run(tt.account+"."+tt.field, func(t *testing.T) {
			got, err := s.FieldOffset(tt.account, tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldOffset_AfterOption(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	_, err = s.FieldOffset("Loan", "lender")
	assert.ErrorIs(t, err, ErrVariableOffset)

	_, err = s.FieldOffset("Rental", "currentExpiry")
	assert.ErrorIs(t, err, ErrVariableOffset)
}

func TestFieldOffset_Unknown(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	_, err = s.FieldOffset("Loan", "nope")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = s.FieldOffset("Nope", "borrower")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFieldSize(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	size, err := s.FieldSize("Collection", "config")
	require.NoError(t, err)
	assert.Equal(t, 9, size)

	size, err = s.FieldSize("Loan", "borrower")
	require.NoError(t, err)
	assert.Equal(t, 32, size)

	_, err = s.FieldSize("Loan", "amount")
	assert.ErrorIs(t, err, ErrVariableOffset)
}
