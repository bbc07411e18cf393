package tokens

import "github.com/kevin07696/payment-engine/internal/domain"

// MergeTokens combines the stored tokens with the gateway's listing. The
// remote set decides which tokens exist. For each remote token, attributes
// the gateway left empty are filled from the matching local token; a
// non-empty remote value always wins. The result holds at most one default,
// the first in remote order. Inputs are not modified.
func MergeTokens(local, remote []*domain.PaymentToken) []*domain.PaymentToken {
	byID := make(map[string]*domain.PaymentToken, len(local))
	for _, t := range local {
		byID[t.ID] = t
	}

	merged := make([]*domain.PaymentToken, 0, len(remote))
	for _, r := range remote {
		m := r.Clone()
		if l, ok := byID[r.ID]; ok {
			fillMissing(m, l)
		}
		merged = append(merged, m)
	}

	EnsureSingleDefault(merged)
	return merged
}

func fillMissing(dst, src *domain.PaymentToken) {
	fill := func(d *string, s string) {
		if *d == "" && s != "" {
			*d = s
		}
	}
	fill(&dst.Nickname, src.Nickname)
	fill(&dst.BillingHash, src.BillingHash)
	fill(&dst.CardType, src.CardType)
	fill(&dst.AccountType, src.AccountType)
	fill(&dst.LastFour, src.LastFour)
	fill(&dst.ExpMonth, src.ExpMonth)
	fill(&dst.ExpYear, src.ExpYear)
	if !dst.Default && src.Default {
		dst.Default = true
	}
	if !dst.Migrated && src.Migrated {
		dst.Migrated = true
	}
}

// EnsureSingleDefault clears every default flag after the first. It returns
// the tokens whose flag changed.
func EnsureSingleDefault(tokens []*domain.PaymentToken) []*domain.PaymentToken {
	var changed []*domain.PaymentToken
	seen := false
	for _, t := range tokens {
		if !t.Default {
			continue
		}
		if seen {
			t.Default = false
			changed = append(changed, t)
			continue
		}
		seen = true
	}
	return changed
}

// promoteDefault makes the first merged token default when the gateway
// dropped the local default and no remaining token carries the flag.
func promoteDefault(local, merged []*domain.PaymentToken) {
	if len(merged) == 0 || hasDefault(merged) {
		return
	}
	for _, t := range local {
		if t.Default && indexOf(merged, t.ID) < 0 {
			merged[0].Default = true
			return
		}
	}
}
