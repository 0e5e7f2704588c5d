// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provtypes holds the small closed value types shared between the
// provenance, preflight, and policy packages: data-node kinds, rule
// identifiers, and decision verdicts.
package provtypes

import (
	"strings"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
)

// DataKind classifies the origin of a DataNode in the provenance graph.
type DataKind string

const (
	DataKindUserPrompt     DataKind = "user_prompt"
	DataKindToolObservation DataKind = "tool_observation"
	DataKindFileContent    DataKind = "file_content"
	DataKindModelLiteral   DataKind = "model_literal"
	DataKindUnknown        DataKind = "unknown"
)

// Valid reports whether k is a recognized data-node kind.
func (k DataKind) Valid() bool {
	switch k {
	case DataKindUserPrompt, DataKindToolObservation, DataKindFileContent, DataKindModelLiteral, DataKindUnknown:
		return true
	default:
		return false
	}
}

// ParseDataKind parses a case-insensitive string into a DataKind, defaulting
// to DataKindUnknown for anything unrecognized rather than failing — callers
// on the hot path treat an unrecognized kind as maximally untrusted, not as
// an error.
func ParseDataKind(s string) DataKind {
	k := DataKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return DataKindUnknown
	}
	return k
}

// Verdict is the coarse-grained outcome of a preflight evaluation.
type Verdict string

const (
	VerdictAllow   Verdict = "allow"
	VerdictDeny    Verdict = "deny"
	VerdictConfirm Verdict = "confirm"
)

// Valid reports whether v is a recognized verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAllow, VerdictDeny, VerdictConfirm:
		return true
	default:
		return false
	}
}

// RuleID names the specific rule that produced a non-allow verdict. The set
// is closed: every value corresponds to one of the failure kinds an
// evaluator can return.
type RuleID string

const (
	RuleProvRefUnresolved          RuleID = "prov.ref_unresolved"
	RuleProvHighRiskAfterUntrusted RuleID = "prov.high_risk_after_untrusted"
	RuleProvHighRiskStaleSource    RuleID = "prov.high_risk_stale_source"
	RuleProvHighRiskNonUserSource  RuleID = "prov.high_risk_non_user_source"

	RulePathOutsideAllowedRoots RuleID = "path.outside_allowed_roots"
	RulePathBlocked             RuleID = "path.blocked"
	RulePathHomeSensitive       RuleID = "path.home_sensitive"

	RuleSecretsDetected RuleID = "secrets.detected"

	RuleNetworkNotAllowlisted RuleID = "network.not_allowlisted"

	RuleExecShellWrapped           RuleID = "exec.shell_wrapped"
	RuleCommandDestructiveNoTarget RuleID = "command.destructive.no_target"

	RuleToolParamsUnrecognized RuleID = "tool.params_unrecognized"

	// RuleNone marks a decision with no associated rule, i.e. a clean allow.
	RuleNone RuleID = ""
)

var validRuleIDs = map[RuleID]bool{
	RuleProvRefUnresolved:          true,
	RuleProvHighRiskAfterUntrusted: true,
	RuleProvHighRiskStaleSource:    true,
	RuleProvHighRiskNonUserSource:  true,
	RulePathOutsideAllowedRoots:    true,
	RulePathBlocked:                true,
	RulePathHomeSensitive:          true,
	RuleSecretsDetected:            true,
	RuleNetworkNotAllowlisted:      true,
	RuleExecShellWrapped:           true,
	RuleCommandDestructiveNoTarget: true,
	RuleToolParamsUnrecognized:     true,
	RuleNone:                       true,
}

// Valid reports whether r is one of the closed set of recognized rule ids.
func (r RuleID) Valid() bool {
	return validRuleIDs[r]
}

// ParseRuleID validates s against the closed rule-id set.
func ParseRuleID(s string) (RuleID, error) {
	r := RuleID(s)
	if !r.Valid() {
		return "", gateerr.Errorf(gateerr.CodePolicyValidateInvalid, "unrecognized rule id: %q", s)
	}
	return r, nil
}
