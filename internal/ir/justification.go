package ir

import (
	"slices"
	"sort"
)

// Justification records why a fact holds: a set of supporting facts and the
// rule (or, once resolved to base facts, rules) that derived it.
//
// Materialized justifications always have at least one support and exactly
// one rule. Identity is the triple key, the support key set and the rule ID
// set; see Signature.
type Justification struct {
	ID                string
	Triple            Fact
	SupportingTriples []Fact
	SupportingRules   []Rule
}

// SupportKeys returns the sorted, deduplicated keys of the supports.
func (j Justification) SupportKeys() []FactKey {
	keys := make([]FactKey, 0, len(j.SupportingTriples))
	seen := make(map[FactKey]bool, len(j.SupportingTriples))
	for _, f := range j.SupportingTriples {
		k := f.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, CompareFactKeys)
	return keys
}

// RuleIDs returns the sorted, deduplicated IDs of the supporting rules.
func (j Justification) RuleIDs() []string {
	ids := make([]string, 0, len(j.SupportingRules))
	seen := make(map[string]bool, len(j.SupportingRules))
	for _, r := range j.SupportingRules {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Signature is the content hash of the justification's identity.
func (j Justification) Signature() string {
	sig, err := JustificationSignature(j.Triple.Key(), j.SupportKeys(), j.RuleIDs())
	if err != nil {
		panic(err)
	}
	return sig
}

// Equal compares justifications by identity, ignoring IDs and bookkeeping.
func (j Justification) Equal(other Justification) bool {
	return j.Triple.Key() == other.Triple.Key() &&
		slices.Equal(j.SupportKeys(), other.SupportKeys()) &&
		slices.Equal(j.RuleIDs(), other.RuleIDs())
}

// SupportedBy reports whether k is one of the supporting triples.
func (j Justification) SupportedBy(k FactKey) bool {
	for _, f := range j.SupportingTriples {
		if f.Key() == k {
			return true
		}
	}
	return false
}

// IsSelfSupporting reports whether the derived triple is among its own
// supports.
func (j Justification) IsSelfSupporting() bool {
	return j.SupportedBy(j.Triple.Key())
}

// RuleNames returns the names of the supporting rules, sorted.
func (j Justification) RuleNames() []string {
	names := make([]string, 0, len(j.SupportingRules))
	for _, r := range j.SupportingRules {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return slices.Compact(names)
}
