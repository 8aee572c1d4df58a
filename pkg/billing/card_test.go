package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCard(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mutate    func(*PaymentData)
		wantField string
	}{
		{"valid", func(p *PaymentData) {}, ""},
		{"short number", func(p *PaymentData) { p.CardNumber = "4111 1111 1111 111" }, FieldCardNumber},
		{"number wins over everything", func(p *PaymentData) { *p = PaymentData{CardNumber: "1"} }, FieldCardNumber},
		{"bad expiry format", func(p *PaymentData) { p.CardExpiry = "1/30" }, FieldCardExpiry},
		{"expiry letters", func(p *PaymentData) { p.CardExpiry = "ab/cd" }, FieldCardExpiry},
		{"month zero", func(p *PaymentData) { p.CardExpiry = "00/30" }, FieldCardExpiry},
		{"month thirteen", func(p *PaymentData) { p.CardExpiry = "13/30" }, FieldCardExpiry},
		{"expired last month", func(p *PaymentData) { p.CardExpiry = "02/26" }, FieldCardExpiry},
		{"current month still valid", func(p *PaymentData) { p.CardExpiry = "03/26" }, ""},
		{"cvv too long", func(p *PaymentData) { p.CardCVV = "1234" }, FieldCardCVV},
		{"cvv letters", func(p *PaymentData) { p.CardCVV = "12a" }, FieldCardCVV},
		{"name too short", func(p *PaymentData) { p.CardName = " A " }, FieldCardName},
		{"name blank", func(p *PaymentData) { p.CardName = "" }, FieldCardName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayment()
			tt.mutate(&p)

			err := ValidateCard(p, now)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.NotEmpty(t, ve.Message)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidateCard_ExpiredJanuary2020(t *testing.T) {
	p := PaymentData{CardNumber: "4111111111111111", CardExpiry: "01/20", CardCVV: "123", CardName: "A B"}

	err := ValidateCard(p, time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, FieldCardExpiry, ve.Field)
	assert.Equal(t, "Card has expired", ve.Message)
}

func TestValidateCard_EndOfExpiryMonth(t *testing.T) {
	p := validPayment()
	p.CardExpiry = "01/20"

	lastMoment := time.Date(2020, time.January, 31, 23, 59, 59, 0, time.UTC)
	assert.NoError(t, ValidateCard(p, lastMoment))

	assert.Error(t, ValidateCard(p, lastMoment.Add(time.Second)))
}
