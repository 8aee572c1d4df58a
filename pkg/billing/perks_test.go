package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePerks(t *testing.T) {
	plan := Plan{ListingQuota: 5, BumpCredits: 0, FeatureCredits: 2, SupportLevel: "email"}
	defaults := []string{
		"Monthly listing allowance: 5",
		"Bump credits: 0",
		"Feature credits: 2",
		"Support: email",
	}

	tests := []struct {
		name  string
		field PerksField
		want  []string
	}{
		{"structured list as-is", PerksFromList([]string{" keep spacing ", "b"}), []string{" keep spacing ", "b"}},
		{"empty structured list", PerksFromList([]string{}), defaults},
		{"json array", PerksFromText(`["Priority support", "Bulk upload"]`), []string{"Priority support", "Bulk upload"}},
		{"json array with numbers", PerksFromText(`["Bumps", 10]`), []string{"Bumps", "10"}},
		{"json string literal is split", PerksFromText(`"a; b, c\nd"`), []string{"a", "b", "c", "d"}},
		{"plain text split", PerksFromText("one;two , three\n\nfour"), []string{"one", "two", "three", "four"}},
		{"broken json falls back to split", PerksFromText(`[a, b`), []string{"[a", "b"}},
		{"bracketed non-json is split", PerksFromText(`[a, b]`), []string{"[a", "b]"}},
		{"only delimiters", PerksFromText(" ;, \n "), defaults},
		{"empty json array", PerksFromText(`[]`), defaults},
		{"blank text", PerksFromText("   "), defaults},
		{"absent", PerksField{}, defaults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePerks(tt.field, plan))
		})
	}
}

func TestNormalizePerks_DoesNotAliasInput(t *testing.T) {
	list := []string{"a"}
	out := NormalizePerks(PerksFromList(list), Plan{})
	out[0] = "changed"
	assert.Equal(t, "a", list[0])
}

func TestDefaultPerks(t *testing.T) {
	t.Run("exactly four lines in fixed order", func(t *testing.T) {
		perks := DefaultPerks(Plan{ListingQuota: 20, BumpCredits: 3, FeatureCredits: 1, SupportLevel: "priority"})
		assert.Equal(t, []string{
			"Monthly listing allowance: 20",
			"Bump credits: 3",
			"Feature credits: 1",
			"Support: priority",
		}, perks)
	})

	t.Run("unlimited and missing support", func(t *testing.T) {
		perks := DefaultPerks(Plan{ListingQuota: UnlimitedQuota})
		assert.Equal(t, "Monthly listing allowance: Unlimited", perks[0])
		assert.Equal(t, "Support: none", perks[3])
	})
}
