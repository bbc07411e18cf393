package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLuhnValid(t *testing.T) {
	testCases := []struct {
		name   string
		number string
		want   bool
	}{
		{name: "valid visa", number: "4111111111111111", want: true},
		{name: "bad checksum", number: "4111111111111112", want: false},
		{name: "non digit", number: "4111-1111-abcd-1111", want: false},
		{name: "letters only", number: "abcdefghijkl", want: false},
		{name: "empty", number: "", want: false},
		{name: "valid amex", number: "378282246310005", want: true},
		{name: "valid mastercard", number: "5555555555554444", want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LuhnValid(tc.number))
		})
	}
}

func TestValidateCardNumber(t *testing.T) {
	assert.Empty(t, ValidateCardNumber("4111 1111 1111 1111"))
	assert.NotEmpty(t, ValidateCardNumber("4111111111111112"))
	assert.NotEmpty(t, ValidateCardNumber("41111x1111111111"))
	assert.NotEmpty(t, ValidateCardNumber(""))
	assert.NotEmpty(t, ValidateCardNumber("4111"))
}

func TestCardTypeFromAccountNumber(t *testing.T) {
	testCases := []struct {
		number string
		want   string
	}{
		{"4111111111111111", CardTypeVisa},
		{"5555555555554444", CardTypeMastercard},
		{"2223003122003222", CardTypeMastercard},
		{"378282246310005", CardTypeAmex},
		{"6011111111111117", CardTypeDiscover},
		{"30569309025904", CardTypeDinersClub},
		{"3530111333300000", CardTypeJCB},
		{"6200000000000005", CardTypeUnionPay},
		{"", ""},
		{"9999", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.number, func(t *testing.T) {
			assert.Equal(t, tc.want, CardTypeFromAccountNumber(tc.number))
		})
	}
}

func TestNormalizeCardType(t *testing.T) {
	assert.Equal(t, CardTypeMastercard, NormalizeCardType("MasterCard"))
	assert.Equal(t, CardTypeMastercard, NormalizeCardType("mc"))
	assert.Equal(t, CardTypeAmex, NormalizeCardType("American Express"))
	assert.Equal(t, CardTypeAmex, NormalizeCardType("american_express"))
	assert.Equal(t, CardTypeVisa, NormalizeCardType(" VISA "))
	assert.Equal(t, CardTypeDinersClub, NormalizeCardType("Diners-Club"))
	assert.Equal(t, "carteblanche", NormalizeCardType("Carte Blanche"))
	assert.Empty(t, NormalizeCardType(""))
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, ValidateExpiry("06", "2026", now))
	assert.Empty(t, ValidateExpiry("1", "27", now))
	assert.Equal(t, "Card is expired", ValidateExpiry("05", "2026", now))
	assert.NotEmpty(t, ValidateExpiry("13", "2027", now))
	assert.NotEmpty(t, ValidateExpiry("01", "abcd", now))
	assert.NotEmpty(t, ValidateExpiry("01", "2099", now))
}

func TestValidateCSC(t *testing.T) {
	assert.Empty(t, ValidateCSC("123"))
	assert.Empty(t, ValidateCSC("1234"))
	assert.NotEmpty(t, ValidateCSC("12"))
	assert.NotEmpty(t, ValidateCSC("12a"))
	assert.NotEmpty(t, ValidateCSC(""))
}

func TestValidateRoutingNumber(t *testing.T) {
	assert.Empty(t, ValidateRoutingNumber("021000021"))
	assert.Empty(t, ValidateRoutingNumber("011000015"))
	assert.NotEmpty(t, ValidateRoutingNumber("021000022"))
	assert.NotEmpty(t, ValidateRoutingNumber("000000000"))
	assert.NotEmpty(t, ValidateRoutingNumber("12345"))
}

func TestValidateBankAccountNumber(t *testing.T) {
	assert.Empty(t, ValidateBankAccountNumber("123456789"))
	assert.NotEmpty(t, ValidateBankAccountNumber("12"))
	assert.NotEmpty(t, ValidateBankAccountNumber("12345678901234567890"))
	assert.NotEmpty(t, ValidateBankAccountNumber("12-34"))
}
