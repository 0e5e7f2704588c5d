// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package preflight combines the provenance registry and turn automaton
// with the declarative policy to admit or deny a proposed tool call (the
// Pre-flight Evaluator), and updates both after a tool observation
// completes (the Post-tool Recorder). The orchestrator exposed here is the
// single entry point an agent harness calls before and after every tool
// execution.
package preflight

import (
	"log/slog"

	"github.com/openclaw-dev/openclaw-gate/internal/execpolicy"
	"github.com/openclaw-dev/openclaw-gate/internal/netfw"
	"github.com/openclaw-dev/openclaw-gate/internal/pathfw"
	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	"github.com/openclaw-dev/openclaw-gate/internal/provenance"
	"github.com/openclaw-dev/openclaw-gate/internal/secretscan"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// Decision is the outcome of a pre-flight evaluation, returned across the
// package boundary as a tagged value — callers never see an exception for
// a policy denial, only for a genuine internal failure, and even those are
// converted to a fail-closed Decision before they reach the caller.
type Decision struct {
	Allowed  bool
	Verdict  provtypes.Verdict
	Reason   string
	RuleID   provtypes.RuleID
	Metadata map[string]any
}

func allow() Decision {
	return Decision{Allowed: true, Verdict: provtypes.VerdictAllow}
}

func deny(rule provtypes.RuleID, reason string, metadata map[string]any) Decision {
	return Decision{Allowed: false, Verdict: provtypes.VerdictDeny, RuleID: rule, Reason: reason, Metadata: metadata}
}

func confirm(rule provtypes.RuleID, reason string, metadata map[string]any) Decision {
	return Decision{Allowed: false, Verdict: provtypes.VerdictConfirm, RuleID: rule, Reason: reason, Metadata: metadata}
}

func failClosed(subsystem string) Decision {
	return Decision{Allowed: false, Verdict: provtypes.VerdictDeny, Reason: subsystem + " check failed (fail-closed)"}
}

// violation picks deny or confirm for a provenance rule violation according
// to the policy's configured onViolation value — spec §4.F step 5's
// "{decision: on_violation, ...}" is a policy-driven choice, not always a
// hard deny.
func violation(onViolation string, rule provtypes.RuleID, reason string, metadata map[string]any) Decision {
	if onViolation == "confirm" {
		return confirm(rule, reason, metadata)
	}
	return deny(rule, reason, metadata)
}

// Request is the input to Evaluator.Evaluate: a proposed tool call.
type Request struct {
	SessionID  string
	ToolName   string
	Params     any
	ToolCallID string
}

// Observation is the input to Evaluator.Record: a completed tool call.
type Observation struct {
	SessionID  string
	ToolName   string
	ToolCallID string
	OK         bool
	Result     any
}

// Evaluator is the Pre-flight Evaluator plus Post-tool Recorder, bound to
// an explicit Registry and policy Store. There is no package-level
// default: the caller constructs one Evaluator per engine instance.
type Evaluator struct {
	Registry    *provenance.Registry
	PolicyStore *policy.Store
}

// NewEvaluator builds an Evaluator over registry and store.
func NewEvaluator(registry *provenance.Registry, store *policy.Store) *Evaluator {
	return &Evaluator{Registry: registry, PolicyStore: store}
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

// provenancePreflight implements component F's numbered algorithm in
// isolation, independent of the secret scan / path / exec checks the
// orchestrator layers on top.
func (e *Evaluator) provenancePreflight(p *policy.Policy, req Request) Decision {
	if !p.Provenance.Enabled {
		return allow()
	}

	e.Registry.AutoBeginTurn(req.SessionID)

	if contains(p.Provenance.FileWriteTools, req.ToolName) {
		paths := extractPaths(req.Params)
		if len(paths) > 0 {
			e.Registry.AddPendingWrite(req.SessionID, req.ToolCallID, paths)
		}
	}

	refIDs := provenance.CollectRefs(req.Params)
	statuses := e.Registry.ClassifyRefs(req.SessionID, refIDs, p.Provenance.CurrentTurnOnly, p.Provenance.ForbidNonUserData)

	var anyMissing, anyStale, anyNonUser bool
	for _, st := range statuses {
		if st.Missing {
			anyMissing = true
		}
		if st.Stale {
			anyStale = true
		}
		if st.NonUser {
			anyNonUser = true
		}
	}

	if anyMissing {
		return violation(p.Provenance.OnViolation, provtypes.RuleProvRefUnresolved, "referenced data node not found in this session", nil)
	}

	highRisk := contains(p.Provenance.HighRiskTools, req.ToolName) || req.ToolName == "exec"
	if highRisk {
		_, tainted := e.Registry.Snapshot(req.SessionID)
		switch {
		case p.Provenance.RequireCleanForHighRisk && tainted:
			return violation(p.Provenance.OnViolation, provtypes.RuleProvHighRiskAfterUntrusted, "untrusted data entered this turn before a high-risk call", nil)
		case anyStale:
			return violation(p.Provenance.OnViolation, provtypes.RuleProvHighRiskStaleSource, "referenced data is stale relative to the current turn", nil)
		case anyNonUser:
			return violation(p.Provenance.OnViolation, provtypes.RuleProvHighRiskNonUserSource, "referenced data did not originate from the user prompt", nil)
		}
	}

	return allow()
}

// Evaluate is the orchestrator: the single entry point the agent harness
// calls before executing a tool. It composes, in strict order: (a)
// provenance pre-flight, (b) $ref resolution, (c) secret scan, (d) exec
// classification, (e) path-access for non-exec tools. Any internal error
// from any sub-check converts to a fail-closed deny — this function never
// panics or returns an error to the caller; every outcome is a Decision.
func (e *Evaluator) Evaluate(req Request) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("preflight evaluation panicked, failing closed", "panic", r, "tool", req.ToolName)
			decision = failClosed("preflight")
		}
	}()

	p := e.PolicyStore.Load()
	if !p.Enabled {
		return allow()
	}

	// (a) provenance pre-flight
	if d := e.provenancePreflight(p, req); !d.Allowed {
		return d
	}

	// (b) $ref resolution
	resolved, err := e.Registry.ResolveRefs(req.SessionID, req.Params)
	if err != nil {
		return deny(provtypes.RuleProvRefUnresolved, "failed to resolve referenced data", nil)
	}

	// (c) secret scan — skipped outright when the operator has disabled it.
	if p.Secrets.Enabled {
		scanner, err := secretscan.New(p)
		if err != nil {
			slog.Error("secret scanner unavailable, failing closed", "error", err)
			return failClosed("secrets")
		}
		scanResult := scanner.Scan(req.ToolName, resolved)
		if scanResult.Detected {
			return deny(provtypes.RuleSecretsDetected, "secret detected in tool parameters", map[string]any{
				"field": scanResult.FirstField,
				"count": scanResult.Count,
			})
		}
	}

	// A recognized channel/destination shape is evaluated by the network
	// allowlist instead of the path firewall — the destination is a
	// hostname or channel address, not a filesystem path, even though it
	// may arrive under a key ("to") the path heuristic also recognizes.
	if channel, host, ok := extractChannelDestination(resolved); ok {
		if !netfw.Allowed(p, channel, host) {
			return deny(provtypes.RuleNetworkNotAllowlisted, "destination not allowlisted for this channel", map[string]any{
				"channel": channel,
				"host":    host,
			})
		}
		return allow()
	}

	if req.ToolName == "exec" {
		return e.evaluateExec(p, resolved)
	}

	return e.evaluatePaths(p, resolved)
}

func (e *Evaluator) evaluateExec(p *policy.Policy, resolved any) Decision {
	command, argv := extractCommand(resolved)

	// A compound line (`ls && bash -c '...'`, `ls; rm -rf /data`) hides its
	// dangerous stage behind an innocuous leading one — Classify must see
	// each stage on its own, not just the base command of the whole line.
	for _, stage := range execpolicy.SplitCompound(command) {
		class := execpolicy.Classify(stage)
		if !class.Allowed {
			return deny(class.RuleID, "exec command rejected by execution policy", map[string]any{"command": class.Rendered})
		}
	}

	for _, arg := range argv {
		d := pathfw.Check(p, arg, "")
		if !d.Allowed {
			return deny(d.RuleID, "exec argument path rejected", map[string]any{"path": arg})
		}
	}

	return allow()
}

func (e *Evaluator) evaluatePaths(p *policy.Policy, resolved any) Decision {
	paths := extractPaths(resolved)
	if len(paths) == 0 {
		return deny(provtypes.RuleToolParamsUnrecognized, "no recognized path shape in tool parameters", nil)
	}

	for _, path := range paths {
		d := pathfw.Check(p, path, "")
		if !d.Allowed {
			return deny(d.RuleID, "path rejected by path firewall", map[string]any{"path": path})
		}
	}

	return allow()
}

// BeginUserTurn starts a fresh turn for sessionID, the authoritative entry
// point a harness calls on every new user prompt.
func (e *Evaluator) BeginUserTurn(sessionID, text string) string {
	return e.Registry.BeginUserTurn(sessionID, text)
}

// Record is the Post-tool Recorder: it updates taint, commits any pending
// write matching obs.ToolCallID, creates the observation DataNode, and
// returns its id so the caller can attach it to the tool result as a
// provenance handle.
func (e *Evaluator) Record(obs Observation) string {
	p := e.PolicyStore.Load()

	e.Registry.AutoBeginTurn(obs.SessionID)

	if !contains(p.Provenance.TrustedObservationTools, obs.ToolName) {
		e.Registry.RecordObservation(obs.SessionID, obs.ToolName)
	}

	if obs.ToolCallID != "" {
		e.Registry.CommitPendingWrite(obs.SessionID, obs.ToolCallID, obs.OK)
	}

	return e.Registry.RegisterObservation(obs.SessionID, obs.ToolName, obs.ToolCallID, obs.OK, obs.Result)
}
