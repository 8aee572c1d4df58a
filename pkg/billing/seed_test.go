package billing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
plans:
  - code: free
    name: Free
    listing_quota: 5
  - code: pro
    name: Pro
    price_cents: 999
    listing_quota: 9999
    bump_credits: 10
    feature_credits: 10
    support_level: email
    perks:
      - Unlimited listings
      - 10 bumps a month
  - code: business
    price_cents: 2999
    perks: "Everything in Pro; Priority support"
    is_active: false
`

func TestParsePlanSeed(t *testing.T) {
	records, err := ParsePlanSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, records, 3)

	free := records[0]
	assert.Equal(t, "USD", free.Plan.Currency)
	assert.Equal(t, "none", free.Plan.SupportLevel)
	assert.True(t, free.Plan.IsActive)
	assert.Equal(t, PerksAbsent, free.Perks.Kind)
	assert.Len(t, free.Normalized().Perks, 4)

	pro := records[1]
	assert.Equal(t, PerksList, pro.Perks.Kind)
	assert.Equal(t, []string{"Unlimited listings", "10 bumps a month"}, pro.Normalized().Perks)

	business := records[2]
	assert.Equal(t, "business", business.Plan.Name)
	assert.False(t, business.Plan.IsActive)
	assert.Equal(t, []string{"Everything in Pro", "Priority support"}, business.Normalized().Perks)
}

func TestParsePlanSeed_Errors(t *testing.T) {
	tests := map[string]string{
		"missing code":     "plans:\n  - name: x\n",
		"duplicate code":   "plans:\n  - code: a\n  - code: a\n",
		"yearly period":    "plans:\n  - code: a\n    billing_period: yearly\n",
		"unknown field":    "plans:\n  - code: a\n    colour: red\n",
		"non-string perks": "plans:\n  - code: a\n    perks: [1, 2]\n",
		"map perks":        "plans:\n  - code: a\n    perks: {a: b}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlanSeed(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
