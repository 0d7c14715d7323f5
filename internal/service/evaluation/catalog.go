package evaluation

import (
	"sort"
	"time"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
)

// RuleCatalog answers "which rules apply" queries over an immutable rule
// snapshot. Evaluations running concurrently each hold their own catalog,
// so a rule-set update mid-batch never tears an in-flight evaluation.
type RuleCatalog struct {
	rules []*compliance.PenaltyRule
}

// NewRuleCatalog builds a catalog over a rule snapshot
func NewRuleCatalog(rules []*compliance.PenaltyRule) *RuleCatalog {
	return &RuleCatalog{rules: rules}
}

// Select returns the rules applicable to one obligation facet, in
// precedence order: category-specific before wildcard, then ascending
// priority, then most recent effective date. An empty result is the
// normal "no penalty of this type applies" answer, not an error.
func (c *RuleCatalog) Select(taxType compliance.TaxType, penaltyType compliance.PenaltyType, category compliance.TaxpayerCategory, asOf time.Time) []*compliance.PenaltyRule {
	var matched []*compliance.PenaltyRule
	for _, r := range c.rules {
		if r.PenaltyType != penaltyType {
			continue
		}
		if !r.AppliesTo(taxType, category, asOf) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.IsCategorySpecific() != b.IsCategorySpecific() {
			return a.IsCategorySpecific()
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.EffectiveFrom.After(b.EffectiveFrom)
	})

	return matched
}

// Best returns the single highest-precedence applicable rule, or nil when
// no rule matches.
func (c *RuleCatalog) Best(taxType compliance.TaxType, penaltyType compliance.PenaltyType, category compliance.TaxpayerCategory, asOf time.Time) *compliance.PenaltyRule {
	matched := c.Select(taxType, penaltyType, category, asOf)
	if len(matched) == 0 {
		return nil
	}
	return matched[0]
}
