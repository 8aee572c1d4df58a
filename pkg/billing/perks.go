package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PerksKind tags which variant a PerksField holds
type PerksKind int

const (
	// PerksAbsent means the column was NULL or never set
	PerksAbsent PerksKind = iota
	// PerksList is an already structured list
	PerksList
	// PerksText is free-form text, possibly JSON encoded
	PerksText
)

// PerksField is the raw perks column of a plan.
type PerksField struct {
	Kind PerksKind `json:"kind"`
	List []string  `json:"list,omitempty"`
	Text string    `json:"text,omitempty"`
}

// PerksFromList wraps a structured perks list
func PerksFromList(list []string) PerksField {
	if list == nil {
		return PerksField{Kind: PerksAbsent}
	}
	return PerksField{Kind: PerksList, List: list}
}

// PerksFromText wraps a free-form perks column
func PerksFromText(text string) PerksField {
	return PerksField{Kind: PerksText, Text: text}
}

// NormalizePerks turns a raw perks field into display lines.
// The result is never empty: when nothing usable is stored, DefaultPerks is used.
func NormalizePerks(field PerksField, plan Plan) []string {
	var perks []string

	switch field.Kind {
	case PerksList:
		perks = append([]string(nil), field.List...)
	case PerksText:
		perks = parsePerksText(field.Text)
	}

	if len(perks) == 0 {
		return DefaultPerks(plan)
	}
	return perks
}

func parsePerksText(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if looksLikeJSON(trimmed) {
		var decoded interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			switch v := decoded.(type) {
			case []interface{}:
				list := make([]string, 0, len(v))
				for _, item := range v {
					if s, ok := item.(string); ok {
						list = append(list, s)
					} else if item != nil {
						list = append(list, fmt.Sprint(item))
					}
				}
				return list
			case string:
				return splitPerks(v)
			}
		}
	}

	return splitPerks(trimmed)
}

func looksLikeJSON(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '"' && s[len(s)-1] == '"')
}

// splitPerks splits on newline, semicolon or comma, trimming and dropping empties
func splitPerks(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ';' || r == ','
	})

	perks := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			perks = append(perks, p)
		}
	}
	return perks
}

// DefaultPerks synthesizes the four standard perk lines for a plan.
func DefaultPerks(plan Plan) []string {
	support := plan.SupportLevel
	if support == "" {
		support = "none"
	}
	return []string{
		"Monthly listing allowance: " + formatQuota(plan.ListingQuota),
		"Bump credits: " + formatQuota(plan.BumpCredits),
		"Feature credits: " + formatQuota(plan.FeatureCredits),
		"Support: " + support,
	}
}

func formatQuota(q int) string {
	if IsUnlimited(q) {
		return "Unlimited"
	}
	return strconv.Itoa(q)
}
