package cortexa

import "fmt"

// TierPolicyTable maps tier names to their policies. The table is immutable
// at runtime; build it once at startup and share it freely.
type TierPolicyTable map[Tier]TierPolicy

// DefaultTierPolicies returns the production allowance table.
func DefaultTierPolicies() TierPolicyTable {
	return TierPolicyTable{
		TierFree: {
			Name:          TierFree,
			DailyMessages: 20,
			DailyImages:   5,
			DailySearches: 0,
		},
		TierBasic: {
			Name:                   TierBasic,
			DailyMessages:          100,
			DailyImages:            20,
			DailySearches:          5,
			AttachmentsAllowed:     true,
			AugmentedSearchAllowed: true,
		},
		TierPro: {
			Name:                   TierPro,
			DailyMessages:          500,
			DailyImages:            100,
			DailySearches:          20,
			AttachmentsAllowed:     true,
			AugmentedSearchAllowed: true,
		},
		TierBusiness: {
			Name:                   TierBusiness,
			DailyMessages:          500,
			DailyImages:            100,
			DailySearches:          20,
			AttachmentsAllowed:     true,
			AugmentedSearchAllowed: true,
		},
	}
}

// Policy returns the policy for a tier.
func (t TierPolicyTable) Policy(tier Tier) (TierPolicy, bool) {
	p, ok := t[tier]
	return p, ok
}

// Validate checks the table invariants: allowances are non-negative,
// business and pro allow attachments and search, free allows neither.
func (t TierPolicyTable) Validate() error {
	for tier, p := range t {
		for _, res := range Resources {
			if p.BaseLimit(res) < 0 {
				return fmt.Errorf("tier %s: negative %s allowance", tier, res)
			}
		}
	}
	for _, tier := range []Tier{TierPro, TierBusiness} {
		p, ok := t[tier]
		if !ok {
			continue
		}
		if !p.AttachmentsAllowed || !p.AugmentedSearchAllowed {
			return fmt.Errorf("tier %s must allow attachments and search", tier)
		}
	}
	if p, ok := t[TierFree]; ok {
		if p.AttachmentsAllowed || p.AugmentedSearchAllowed {
			return fmt.Errorf("tier %s must not allow attachments or search", TierFree)
		}
	}
	return nil
}

// EffectiveLimit returns the daily limit for a resource scaled linearly by
// team size. Team sizes below 1 count as 1.
func EffectiveLimit(policy TierPolicy, resource Resource, teamSize int) int {
	if teamSize < 1 {
		teamSize = 1
	}
	return policy.BaseLimit(resource) * teamSize
}
