// Package audit builds deterministic audit records and delivers them to
// pluggable sinks. Records canonicalize per RFC 8785; the deterministic
// hash is the SHA-256 of the canonical record with the hash field itself
// omitted, so two identical decisions always fingerprint identically.
package audit

import (
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// BuildRecord assembles the audit record for one decision. The context
// hash covers the effective attribute map (enrichment included); the
// ruleset hash combines the evaluators' content hashes in invocation
// order.
func BuildRecord(
	decision *string,
	confidence float64,
	explanations []string,
	signatures []contracts.EvaluatorSignature,
	ctx *contracts.Context,
) (*contracts.AuditRecord, error) {
	contextHash, err := canonicalize.CanonicalHash(ctx.Attrs())
	if err != nil {
		return nil, fmt.Errorf("audit: context hash: %w", err)
	}

	hashes := make([]string, len(signatures))
	for i, sig := range signatures {
		hashes[i] = sig.ContentHash
	}

	record := &contracts.AuditRecord{
		Decision:            decision,
		Confidence:          confidence,
		Explanations:        explanations,
		EvaluatorSignatures: signatures,
		ContextHash:         contextHash,
		RulesetHash:         canonicalize.CombineHashes(hashes...),
	}

	deterministic, err := canonicalize.CanonicalHash(record.HashableView())
	if err != nil {
		return nil, fmt.Errorf("audit: deterministic hash: %w", err)
	}
	record.DeterministicHash = deterministic
	return record, nil
}

// Verify recomputes the deterministic hash of a record and reports
// whether it matches the embedded one.
func Verify(record *contracts.AuditRecord) (bool, error) {
	computed, err := canonicalize.CanonicalHash(record.HashableView())
	if err != nil {
		return false, err
	}
	return computed == record.DeterministicHash, nil
}
