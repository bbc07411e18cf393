package domain

import (
	"strconv"
	"strings"
	"time"
)

// Canonical card brand codes.
const (
	CardTypeVisa       = "visa"
	CardTypeMastercard = "mastercard"
	CardTypeAmex       = "amex"
	CardTypeDiscover   = "discover"
	CardTypeDinersClub = "dinersclub"
	CardTypeJCB        = "jcb"
	CardTypeMaestro    = "maestro"
	CardTypeUnionPay   = "unionpay"
)

var cardTypeAliases = map[string]string{
	"visa":             CardTypeVisa,
	"vi":               CardTypeVisa,
	"mastercard":       CardTypeMastercard,
	"master card":      CardTypeMastercard,
	"master":           CardTypeMastercard,
	"mc":               CardTypeMastercard,
	"amex":             CardTypeAmex,
	"american express": CardTypeAmex,
	"americanexpress":  CardTypeAmex,
	"ax":               CardTypeAmex,
	"discover":         CardTypeDiscover,
	"disc":             CardTypeDiscover,
	"di":               CardTypeDiscover,
	"diners":           CardTypeDinersClub,
	"diners club":      CardTypeDinersClub,
	"dinersclub":       CardTypeDinersClub,
	"dc":               CardTypeDinersClub,
	"jcb":              CardTypeJCB,
	"maestro":          CardTypeMaestro,
	"unionpay":         CardTypeUnionPay,
	"union pay":        CardTypeUnionPay,
	"china unionpay":   CardTypeUnionPay,
	"cup":              CardTypeUnionPay,
}

var cardTypeLabels = map[string]string{
	CardTypeVisa:       "Visa",
	CardTypeMastercard: "MasterCard",
	CardTypeAmex:       "American Express",
	CardTypeDiscover:   "Discover",
	CardTypeDinersClub: "Diners Club",
	CardTypeJCB:        "JCB",
	CardTypeMaestro:    "Maestro",
	CardTypeUnionPay:   "UnionPay",
}

// NormalizeCardType maps a gateway supplied brand name onto a canonical code.
// Unknown brands are lower-cased and returned as-is.
func NormalizeCardType(brand string) string {
	key := strings.ToLower(strings.TrimSpace(brand))
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "-", " ")
	if key == "" {
		return ""
	}
	if canonical, ok := cardTypeAliases[key]; ok {
		return canonical
	}
	if canonical, ok := cardTypeAliases[strings.ReplaceAll(key, " ", "")]; ok {
		return canonical
	}
	return strings.ReplaceAll(key, " ", "")
}

// CardTypeLabel returns the display name for a canonical brand.
func CardTypeLabel(cardType string) string {
	if label, ok := cardTypeLabels[cardType]; ok {
		return label
	}
	if cardType == "" {
		return "Card"
	}
	return strings.ToUpper(cardType[:1]) + cardType[1:]
}

// CardTypeFromAccountNumber infers the brand from the IIN prefix.
func CardTypeFromAccountNumber(number string) string {
	n := DigitsOnly(number)
	if n == "" {
		return ""
	}

	prefix := func(size int) int {
		if len(n) < size {
			return -1
		}
		v, _ := strconv.Atoi(n[:size])
		return v
	}

	switch {
	case n[0] == '4':
		return CardTypeVisa
	case prefix(2) >= 51 && prefix(2) <= 55, prefix(4) >= 2221 && prefix(4) <= 2720:
		return CardTypeMastercard
	case prefix(2) == 34, prefix(2) == 37:
		return CardTypeAmex
	case prefix(4) == 6011, prefix(2) == 65, prefix(3) >= 644 && prefix(3) <= 649:
		return CardTypeDiscover
	case prefix(2) == 36, prefix(2) == 38, prefix(3) >= 300 && prefix(3) <= 305:
		return CardTypeDinersClub
	case prefix(4) >= 3528 && prefix(4) <= 3589:
		return CardTypeJCB
	case prefix(2) == 62:
		return CardTypeUnionPay
	case prefix(2) == 50, prefix(2) >= 56 && prefix(2) <= 69:
		return CardTypeMaestro
	}
	return ""
}

// DigitsOnly strips everything except 0-9.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LuhnValid checks the mod-10 checksum. Strings containing anything other
// than digits are invalid.
func LuhnValid(number string) bool {
	if len(number) < 2 {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidateCardNumber checks length and checksum of a card number.
func ValidateCardNumber(number string) string {
	n := strings.ReplaceAll(strings.ReplaceAll(number, " ", ""), "-", "")
	switch {
	case n == "":
		return "Card number is missing"
	case DigitsOnly(n) != n:
		return "Card number is invalid (only digits allowed)"
	case len(n) < 12 || len(n) > 19:
		return "Card number is invalid (wrong length)"
	case !LuhnValid(n):
		return "Card number is invalid"
	}
	return ""
}

// ValidateExpiry checks that month/year describe a card that has not yet expired.
func ValidateExpiry(month, year string, now time.Time) string {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "Card expiration month is invalid"
	}
	y, err := strconv.Atoi(NormalizeExpiryYear(year))
	if err != nil || y < 1000 {
		return "Card expiration year is invalid"
	}
	if y > now.Year()+20 {
		return "Card expiration year is invalid"
	}
	if y < now.Year() || (y == now.Year() && m < int(now.Month())) {
		return "Card is expired"
	}
	return ""
}

// ValidateCSC checks a 3 or 4 digit card security code.
func ValidateCSC(csc string) string {
	switch {
	case csc == "":
		return "Card security code is missing"
	case DigitsOnly(csc) != csc:
		return "Card security code is invalid (only digits are allowed)"
	case len(csc) < 3 || len(csc) > 4:
		return "Card security code is invalid (must be 3 or 4 digits)"
	}
	return ""
}

// ValidateRoutingNumber checks an ABA routing number using the 3-7-1 weighted checksum.
func ValidateRoutingNumber(routing string) string {
	if routing == "" {
		return "Routing number is missing"
	}
	if len(routing) != 9 || DigitsOnly(routing) != routing {
		return "Routing number is invalid (must be 9 digits)"
	}
	weights := [3]int{3, 7, 1}
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(routing[i]-'0') * weights[i%3]
	}
	if sum == 0 || sum%10 != 0 {
		return "Routing number is invalid"
	}
	return ""
}

// ValidateBankAccountNumber checks a 3-17 digit bank account number.
func ValidateBankAccountNumber(account string) string {
	switch {
	case account == "":
		return "Account number is missing"
	case DigitsOnly(account) != account:
		return "Account number is invalid (only digits are allowed)"
	case len(account) < 3 || len(account) > 17:
		return "Account number is invalid (must be between 3 and 17 digits)"
	}
	return ""
}

// NormalizeExpiryYear expands a two digit year to four digits.
func NormalizeExpiryYear(year string) string {
	year = strings.TrimSpace(year)
	if len(year) == 2 {
		return "20" + year
	}
	return year
}

// NormalizeExpiryMonth zero-pads a month to two digits.
func NormalizeExpiryMonth(month string) string {
	month = strings.TrimSpace(month)
	if len(month) == 1 {
		return "0" + month
	}
	return month
}
