package billing

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanSeedFile is the YAML document that bootstraps the catalog:
//
//	plans:
//	  - code: free
//	    name: Free
//	    listing_quota: 5
//	  - code: pro
//	    name: Pro
//	    price_cents: 999
//	    listing_quota: 9999
//	    perks:
//	      - Unlimited listings
type PlanSeedFile struct {
	Plans []PlanSeed `yaml:"plans"`
}

// PlanSeed is one catalog entry in a seed file.
// Perks may be a YAML list or a string; omit it to get synthesized perks.
type PlanSeed struct {
	Code           string      `yaml:"code"`
	Name           string      `yaml:"name"`
	PriceCents     int64       `yaml:"price_cents"`
	Currency       string      `yaml:"currency"`
	BillingPeriod  string      `yaml:"billing_period"`
	ListingQuota   int         `yaml:"listing_quota"`
	BumpCredits    int         `yaml:"bump_credits"`
	FeatureCredits int         `yaml:"feature_credits"`
	SupportLevel   string      `yaml:"support_level"`
	Perks          interface{} `yaml:"perks"`
	Active         *bool       `yaml:"is_active"`
}

// LoadPlanSeedFile reads and parses a seed file from disk
func LoadPlanSeedFile(path string) ([]PlanRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan seed: %w", err)
	}
	defer f.Close()
	return ParsePlanSeed(f)
}

// ParsePlanSeed parses a seed document into plan records
func ParsePlanSeed(r io.Reader) ([]PlanRecord, error) {
	var doc PlanSeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan seed: %w", err)
	}

	seen := make(map[string]bool, len(doc.Plans))
	records := make([]PlanRecord, 0, len(doc.Plans))
	for i, seed := range doc.Plans {
		code := strings.TrimSpace(seed.Code)
		if code == "" {
			return nil, fmt.Errorf("plan %d: code is required", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("plan %q: duplicate code", code)
		}
		seen[code] = true

		if seed.BillingPeriod != "" && seed.BillingPeriod != BillingPeriodMonthly {
			return nil, fmt.Errorf("plan %q: unsupported billing period %q", code, seed.BillingPeriod)
		}

		perks, err := seedPerks(seed.Perks)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", code, err)
		}

		plan := Plan{
			Code:           code,
			Name:           seed.Name,
			PriceCents:     seed.PriceCents,
			Currency:       defaultString(seed.Currency, "USD"),
			BillingPeriod:  BillingPeriodMonthly,
			ListingQuota:   seed.ListingQuota,
			BumpCredits:    seed.BumpCredits,
			FeatureCredits: seed.FeatureCredits,
			SupportLevel:   defaultString(seed.SupportLevel, "none"),
			IsActive:       seed.Active == nil || *seed.Active,
		}
		if plan.Name == "" {
			plan.Name = code
		}

		records = append(records, PlanRecord{Plan: plan, Perks: perks})
	}

	return records, nil
}

func seedPerks(v interface{}) (PerksField, error) {
	switch perks := v.(type) {
	case nil:
		return PerksField{Kind: PerksAbsent}, nil
	case string:
		return PerksFromText(perks), nil
	case []interface{}:
		list := make([]string, 0, len(perks))
		for _, item := range perks {
			s, ok := item.(string)
			if !ok {
				return PerksField{}, fmt.Errorf("perks entries must be strings, got %T", item)
			}
			list = append(list, s)
		}
		return PerksFromList(list), nil
	default:
		return PerksField{}, fmt.Errorf("perks must be a list or a string, got %T", v)
	}
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
