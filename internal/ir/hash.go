package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainRule          = "lemma/rule/v1"
	DomainProgram       = "lemma/program/v1"
	DomainJustification = "lemma/justification/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleID computes the content-addressed ID of a rule from its name, head and
// body. Description is excluded: rewording a rule does not change what it
// derives.
func RuleID(name string, head Pattern, body []Pattern) (string, error) {
	encodedBody := make([]any, len(body))
	for i, p := range body {
		encodedBody[i] = p.encode()
	}
	obj := map[string]any{
		"name": name,
		"head": head.encode(),
		"body": encodedBody,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RuleID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRule, canonical), nil
}

// MustRuleID is like RuleID but panics on error.
func MustRuleID(name string, head Pattern, body []Pattern) string {
	id, err := RuleID(name, head, body)
	if err != nil {
		panic(err)
	}
	return id
}

// ProgramID computes the ID of a program from its name, namespaces and the
// IDs of its rules in order.
func ProgramID(name string, namespaces map[string]string, ruleIDs []string) (string, error) {
	ns := make(map[string]any, len(namespaces))
	for prefix, uri := range namespaces {
		ns[prefix] = uri
	}
	obj := map[string]any{
		"name":       name,
		"namespaces": ns,
		"rules":      ruleIDs,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ProgramID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// JustificationSignature hashes a justification's identity: the derived
// triple, the set of supporting triples and the set of rule IDs. Callers pass
// supports and rules already sorted and deduplicated.
func JustificationSignature(triple FactKey, supports []FactKey, ruleIDs []string) (string, error) {
	encodedSupports := make([]any, len(supports))
	for i, k := range supports {
		encodedSupports[i] = k.encode()
	}
	obj := map[string]any{
		"triple":   triple.encode(),
		"supports": encodedSupports,
		"rules":    ruleIDs,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("JustificationSignature: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainJustification, canonical), nil
}
