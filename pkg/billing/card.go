package billing

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Payment form fields, as reported in ValidationError.Field
const (
	FieldCardNumber = "card_number"
	FieldCardExpiry = "card_expiry"
	FieldCardCVV    = "card_cvv"
	FieldCardName   = "card_name"
)

// ValidateCard checks the upgrade form in a fixed order and returns the first failure.
// Order: card number, expiry format, expiry month, expiry recency, CVV, name.
func ValidateCard(p PaymentData, now time.Time) error {
	if countDigits(p.CardNumber) < 16 {
		return &ValidationError{Field: FieldCardNumber, Message: "Card number must have at least 16 digits"}
	}

	month, year, ok := parseExpiry(p.CardExpiry)
	if !ok {
		return &ValidationError{Field: FieldCardExpiry, Message: "Expiry must be in MM/YY format"}
	}
	if month < 1 || month > 12 {
		return &ValidationError{Field: FieldCardExpiry, Message: "Expiry month must be between 01 and 12"}
	}

	// last instant of the expiry month, in the caller's zone
	expiresAt := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, now.Location()).Add(-time.Nanosecond)
	if expiresAt.Before(now) {
		return &ValidationError{Field: FieldCardExpiry, Message: "Card has expired"}
	}

	cvv := strings.TrimSpace(p.CardCVV)
	if len(cvv) != 3 || countDigits(cvv) != 3 {
		return &ValidationError{Field: FieldCardCVV, Message: "CVV must be exactly 3 digits"}
	}

	if len([]rune(strings.TrimSpace(p.CardName))) < 2 {
		return &ValidationError{Field: FieldCardName, Message: "Cardholder name is required"}
	}

	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// parseExpiry parses MM/YY. The month is returned unchecked.
func parseExpiry(s string) (month, year int, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != '/' {
		return 0, 0, false
	}
	if countDigits(s[:2]) != 2 || countDigits(s[3:]) != 2 {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(s[:2])
	year, _ = strconv.Atoi(s[3:])
	return month, year, true
}
