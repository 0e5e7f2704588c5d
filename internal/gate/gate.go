// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package gate is the Tool Wrapper: the single pre/post integration point
// an agent harness imports. Engine composes the policy store, provenance
// registry, pre-flight evaluator, approval bridge, and audit sink behind
// one type so the harness never touches those packages directly.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw-dev/openclaw-gate/internal/approval"
	"github.com/openclaw-dev/openclaw-gate/internal/audit"
	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	"github.com/openclaw-dev/openclaw-gate/internal/preflight"
	"github.com/openclaw-dev/openclaw-gate/internal/provenance"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// Decision re-exports preflight.Decision at the package boundary the
// harness actually imports.
type Decision = preflight.Decision

// Engine is the facade the external harness constructs once per process
// (or once per agent, if multiple agents share no session state) and
// threads through every tool call.
type Engine struct {
	evaluator *preflight.Evaluator
	registry  *provenance.Registry
	bridge    *approval.Bridge
	auditSink audit.Sink
}

// NewEngine composes a Policy Store, Provenance Registry, optional
// Approval Bridge, and optional audit Sink into one Engine. bridge and
// auditSink may be nil: a nil bridge converts every confirm decision to
// deny; a nil auditSink simply skips recording decisions.
func NewEngine(store *policy.Store, registry *provenance.Registry, bridge *approval.Bridge, auditSink audit.Sink) *Engine {
	return &Engine{
		evaluator: preflight.NewEvaluator(registry, store),
		registry:  registry,
		bridge:    bridge,
		auditSink: auditSink,
	}
}

// BeginUserTurn starts a fresh turn for sessionID and returns the new
// user_prompt node's id.
func (e *Engine) BeginUserTurn(ctx context.Context, sessionID, text string) (string, error) {
	if sessionID == "" {
		return "", gateerr.New(gateerr.CodeGateInternalFailure, "BeginUserTurn: sessionID must not be empty")
	}
	return e.evaluator.BeginUserTurn(sessionID, text), nil
}

// Preflight evaluates a proposed tool call and returns its Decision. A
// `confirm` verdict is resolved against the Approval Bridge before
// returning — the harness never sees a bare "confirm" it would have to
// resolve itself. The returned error is reserved for programmer errors
// (an empty sessionID); a policy denial is always returned as
// Decision{Allowed:false}, never as a Go error.
func (e *Engine) Preflight(ctx context.Context, sessionID, tool string, params map[string]any, toolCallID string) (Decision, error) {
	if sessionID == "" {
		return Decision{}, gateerr.New(gateerr.CodeGateInternalFailure, "Preflight: sessionID must not be empty")
	}

	decision := e.evaluator.Evaluate(preflight.Request{
		SessionID:  sessionID,
		ToolName:   tool,
		Params:     params,
		ToolCallID: toolCallID,
	})

	if decision.Verdict == provtypes.VerdictConfirm {
		decision = e.resolveConfirm(ctx, decision, tool)
	}

	e.audit(ctx, sessionID, tool, toolCallID, decision)

	return decision, nil
}

func (e *Engine) resolveConfirm(ctx context.Context, decision Decision, tool string) Decision {
	if e.bridge == nil {
		decision.Allowed = false
		decision.Verdict = provtypes.VerdictDeny
		decision.Reason = "no approval bridge configured; confirm treated as deny"
		return decision
	}

	result, err := e.bridge.Confirm(ctx, approval.Request{
		RuleID:   decision.RuleID,
		ToolName: tool,
		Reason:   decision.Reason,
		Metadata: decision.Metadata,
	})
	if err != nil {
		slog.Warn("approval bridge call failed, failing closed", "tool", tool, "rule_id", decision.RuleID, "error", err)
		decision.Allowed = false
		decision.Verdict = provtypes.VerdictDeny
		decision.Reason = "approval bridge unavailable (fail-closed)"
		return decision
	}

	switch result {
	case approval.ResultAllowOnce, approval.ResultAllowAlways:
		decision.Allowed = true
		decision.Verdict = provtypes.VerdictAllow
	default:
		decision.Allowed = false
		decision.Verdict = provtypes.VerdictDeny
	}
	return decision
}

func (e *Engine) audit(ctx context.Context, sessionID, tool, toolCallID string, decision Decision) {
	if e.auditSink == nil {
		return
	}
	audit.AppendBestEffort(ctx, e.auditSink, &audit.Entry{
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		ToolName:   tool,
		ToolCallID: toolCallID,
		Verdict:    decision.Verdict,
		RuleID:     decision.RuleID,
		Reason:     decision.Reason,
		Metadata:   decision.Metadata,
	})
}

// Record is the Post-tool Recorder entry point: it updates taint, commits
// any pending write matching toolCallID, creates the observation DataNode,
// and returns its id.
func (e *Engine) Record(ctx context.Context, sessionID, tool string, result any, toolCallID string, ok bool) (string, error) {
	if sessionID == "" {
		return "", gateerr.New(gateerr.CodeGateInternalFailure, "Record: sessionID must not be empty")
	}
	return e.evaluator.Record(preflight.Observation{
		SessionID:  sessionID,
		ToolName:   tool,
		ToolCallID: toolCallID,
		OK:         ok,
		Result:     result,
	}), nil
}

// Exec is the function signature the harness supplies to Wrap: it
// performs the actual tool invocation.
type Exec func(ctx context.Context, params map[string]any) (any, error)

// Wrap is the full Tool Wrapper round trip: Preflight, then — if
// allowed — Exec, then Record, decorating a successful result with a
// provenance handle. A blocked call returns a denial error without
// recording an observation, so the block itself never enters the
// provenance graph as a synthetic entry. A tool that runs but fails is
// still recorded once, with ok=false, before its error is re-raised —
// losing the failure's provenance would make the next call's taint
// computation wrong.
func (e *Engine) Wrap(ctx context.Context, sessionID, tool string, params map[string]any, toolCallID string, exec Exec) (any, error) {
	decision, err := e.Preflight(ctx, sessionID, tool, params, toolCallID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, gateerr.Errorf(gateerr.CodeGateFailClosed, "tool call blocked: %s (%s)", decision.Reason, decision.RuleID)
	}

	result, execErr := exec(ctx, params)
	ok := execErr == nil

	obsID, recErr := e.Record(ctx, sessionID, tool, result, toolCallID, ok)
	if recErr != nil {
		slog.Error("failed to record tool observation; underlying result is not masked", "tool", tool, "session_id", sessionID, "error", recErr)
	}

	if execErr != nil {
		return nil, execErr
	}

	return decorate(result, obsID), nil
}

func decorate(result any, obsID string) any {
	if obsID == "" {
		return result
	}
	if m, ok := result.(map[string]any); ok {
		decorated := make(map[string]any, len(m)+1)
		for k, v := range m {
			decorated[k] = v
		}
		decorated["__prov_ref"] = obsID
		return decorated
	}
	return map[string]any{"value": result, "__prov_ref": obsID}
}
