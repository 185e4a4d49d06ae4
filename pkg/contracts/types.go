// Package contracts defines the shared data contracts of the decision
// engine: contexts, rules, evaluations, decisions, audit records, and
// version records. Everything here is immutable once constructed and safe
// to share across goroutines.
package contracts

import (
	"time"
)

// Evaluation is the partial verdict of one evaluator for one context.
// The absence of a verdict is represented by a nil *Evaluation, never by
// a zero value.
type Evaluation struct {
	Decision      string         `json:"decision"`
	Weight        float64        `json:"weight"`
	Reason        string         `json:"reason"`
	EvaluatorName string         `json:"evaluator_name"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Trace carries the explainability output of a single evaluator run:
// descriptors for conditions that matched and for those that did not.
type Trace struct {
	Because []string `json:"because,omitempty"`
	Failed  []string `json:"failed_conditions,omitempty"`
}

// Decision is the final output of one agent invocation. Outcome is nil
// when no evaluator produced a verdict and the agent is not strict.
type Decision struct {
	Outcome          *string      `json:"decision"`
	Confidence       float64      `json:"confidence"`
	Explanations     []string     `json:"explanations"`
	Evaluations      []Evaluation `json:"evaluations"`
	AuditPayload     *AuditRecord `json:"audit_payload"`
	Because          []string     `json:"because"`
	FailedConditions []string     `json:"failed_conditions"`
}

// ConditionNode is either a leaf predicate {field, op, value} or a
// combinator over child nodes: All is a short-circuit conjunction, Any a
// short-circuit disjunction. Exactly one of the three forms is populated
// in a validated document.
type ConditionNode struct {
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`

	All []ConditionNode `json:"all,omitempty"`
	Any []ConditionNode `json:"any,omitempty"`
}

// IsLeaf reports whether the node is a leaf predicate.
func (n ConditionNode) IsLeaf() bool {
	return len(n.All) == 0 && len(n.Any) == 0
}

// ThenBlock is the verdict a rule produces when its condition holds.
type ThenBlock struct {
	Decision string         `json:"decision"`
	Weight   float64        `json:"weight"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Rule pairs a predicate with a verdict. IDs are unique within a Ruleset.
type Rule struct {
	ID   string        `json:"id"`
	If   ConditionNode `json:"if"`
	Then ThenBlock     `json:"then"`
}

// Ruleset is an ordered rule collection. Evaluation order is document
// order; the canonical byte form of the document is what audit hashes.
type Ruleset struct {
	Version string `json:"version"`
	Name    string `json:"ruleset"`
	Rules   []Rule `json:"rules"`
}

// EvaluatorSignature identifies one evaluator inside an audit record.
type EvaluatorSignature struct {
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`
}

// EnrichmentOutcome is the recorded effect of one enrichment fetch. Body
// is the decoded response as cached, so seeding a fresh provider from an
// outcome reproduces the fetch without network access.
type EnrichmentOutcome struct {
	Endpoint string         `json:"endpoint"`
	CacheKey string         `json:"cache_key"`
	Body     map[string]any `json:"body,omitempty"`
	OK       bool           `json:"ok"`
}

// AuditRecord is the canonically serializable fingerprint of a decision.
// DeterministicHash is the SHA-256 of the RFC 8785 canonical encoding of
// the record with the DeterministicHash field itself omitted. Timestamp is
// informational and excluded from the hash; it stays empty on the
// deterministic path. Enrichment is likewise excluded: a replay run
// seeded from these outcomes fetches nothing and journals nothing, and a
// tampered outcome surfaces through the context hash on replay.
type AuditRecord struct {
	Decision            *string              `json:"decision"`
	Confidence          float64              `json:"confidence"`
	Explanations        []string             `json:"explanations"`
	EvaluatorSignatures []EvaluatorSignature `json:"evaluator_signatures"`
	ContextHash         string               `json:"context_hash"`
	RulesetHash         string               `json:"ruleset_hash"`
	DeterministicHash   string               `json:"deterministic_hash,omitempty"`
	Enrichment          []EnrichmentOutcome  `json:"enrichment,omitempty"`
	Timestamp           string               `json:"timestamp,omitempty"`
}

// HashableView returns a copy of the record with the deterministic hash,
// enrichment outcomes, and timestamp cleared, the exact shape the
// deterministic hash covers.
func (r *AuditRecord) HashableView() AuditRecord {
	view := *r
	view.DeterministicHash = ""
	view.Enrichment = nil
	view.Timestamp = ""
	return view
}

// VersionStatus is the lifecycle state of a VersionRecord.
type VersionStatus string

const (
	StatusDraft    VersionStatus = "draft"
	StatusActive   VersionStatus = "active"
	StatusArchived VersionStatus = "archived"
)

// VersionRecord is one persisted edition of a ruleset under a rule id.
// At most one record per rule id is active at any committed state.
type VersionRecord struct {
	ID              string        `json:"id"`
	RuleID          string        `json:"rule_id"`
	VersionNumber   int           `json:"version_number"`
	Content         []byte        `json:"content"`
	ContentHash     string        `json:"content_hash"`
	CreatedBy       string        `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
	Status          VersionStatus `json:"status"`
	Changelog       string        `json:"changelog,omitempty"`
	ParentVersionID string        `json:"parent_version_id,omitempty"`
}
