// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provenance

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// Registry owns the per-session map. It is the only piece of the engine
// that requires synchronization: sessions themselves are single-writer, but
// the map of session id → *Session is shared across concurrent sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxStoredValueBytes int
	turnIdleMs           int
	trustedTools         map[string]bool

	now func() time.Time
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithMaxStoredValueBytes overrides the serialized-size cap beyond which a
// DataNode's value is discarded rather than retained.
func WithMaxStoredValueBytes(n int) Option {
	return func(r *Registry) { r.maxStoredValueBytes = n }
}

// WithTurnIdleMs overrides the idle window auto_begin_turn uses to infer a
// fresh turn boundary.
func WithTurnIdleMs(ms int) Option {
	return func(r *Registry) { r.turnIdleMs = ms }
}

// WithTrustedObservationTools sets the tool names whose observations never
// taint the session.
func WithTrustedObservationTools(tools []string) Option {
	return func(r *Registry) {
		m := make(map[string]bool, len(tools))
		for _, t := range tools {
			m[t] = true
		}
		r.trustedTools = m
	}
}

// withClock overrides the time source; used by tests to simulate idle gaps
// without sleeping.
func withClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty, ready-to-use Registry. There is no global
// default instance: the caller owns the handle and its lifetime.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:            make(map[string]*Session),
		maxStoredValueBytes: 32 * 1024,
		turnIdleMs:          15000,
		trustedTools:        map[string]bool{},
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) session(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = newSession(id)
	r.sessions[id] = s
	return s
}

// BeginUserTurn is the authoritative turn-boundary entry point: it
// advances the turn counter, clears taint, and registers a user_prompt
// DataNode for text. Explicit callers that invoke this must not also rely
// on idle inference firing for the same prompt.
func (r *Registry) BeginUserTurn(sessionID, text string) string {
	s := r.session(sessionID)
	s.Turn++
	s.Tainted = false
	s.LastEventAt = r.now()

	id := fmt.Sprintf("user:t%d:%s", s.Turn, uuid.NewString())
	s.Data[id] = &DataNode{
		ID:       id,
		Kind:     string(provtypes.DataKindUserPrompt),
		Turn:     s.Turn,
		Value:    text,
		Retained: r.fits(text),
	}
	return id
}

// AutoBeginTurn is the idle-window safety net called by every public
// operation. If the session has never seen a user turn, or the idle gap
// since the last event exceeds the configured window, it performs a begin
// with empty text. It always refreshes LastEventAt.
func (r *Registry) AutoBeginTurn(sessionID string) {
	s := r.session(sessionID)
	now := r.now()

	idle := s.Turn == 0 || (!s.LastEventAt.IsZero() && now.Sub(s.LastEventAt) > time.Duration(r.turnIdleMs)*time.Millisecond)
	if idle {
		s.Turn++
		s.Tainted = false
		id := fmt.Sprintf("user:t%d:%s", s.Turn, uuid.NewString())
		s.Data[id] = &DataNode{
			ID:   id,
			Kind: string(provtypes.DataKindUserPrompt),
			Turn: s.Turn,
		}
	}
	s.LastEventAt = now
}

// RecordObservation marks the session tainted if tool is not among the
// policy's trusted observation tools. It does not itself create a
// DataNode — that is RegisterObservation's job — it only updates the taint
// flag, matching the Turn Automaton's separate record_observation
// transition from the Post-tool Recorder's DataNode creation.
func (r *Registry) RecordObservation(sessionID, tool string) {
	s := r.session(sessionID)
	if !r.trustedTools[tool] {
		s.Tainted = true
	}
}

// RegisterUserPrompt creates a user_prompt node for the current turn
// without advancing it (used when a harness wants to attach prompt text to
// an already-begun turn).
func (r *Registry) RegisterUserPrompt(sessionID, text string) string {
	s := r.session(sessionID)
	id := fmt.Sprintf("user:t%d:%s", s.Turn, uuid.NewString())
	s.Data[id] = &DataNode{
		ID:       id,
		Kind:     string(provtypes.DataKindUserPrompt),
		Turn:     s.Turn,
		Value:    text,
		Retained: r.fits(text),
	}
	return id
}

// RegisterObservation creates a tool_observation DataNode. The id has the
// shape obs:t<turn>:<tool>_<suffix>, where suffix is the tool-call id if
// present, otherwise a timestamp-derived token so that retries without a
// tool-call id still produce a unique node.
func (r *Registry) RegisterObservation(sessionID, tool, toolCallID string, ok bool, result any) string {
	s := r.session(sessionID)

	suffix := toolCallID
	if suffix == "" {
		suffix = fmt.Sprintf("%d", r.now().UnixNano())
	}
	id := fmt.Sprintf("obs:t%d:%s_%s", s.Turn, tool, suffix)

	node := &DataNode{
		ID:       id,
		Kind:     string(provtypes.DataKindToolObservation),
		ToolName: tool,
		Turn:     s.Turn,
	}
	if ok {
		node.Value = result
		node.Retained = r.fits(result)
	}
	s.Data[id] = node
	return id
}

// RegisterFileContent creates a file_content node for path. If
// currentTurnOnly is set and the resource's last committed write is absent
// or from a different turn, the session is marked tainted — file content
// a tool is about to read may not reflect what the current turn wrote.
func (r *Registry) RegisterFileContent(sessionID, path, content string, currentTurnOnly bool) string {
	s := r.session(sessionID)

	id := fmt.Sprintf("file:t%d:%s", s.Turn, uuid.NewString())
	s.Data[id] = &DataNode{
		ID:       id,
		Kind:     string(provtypes.DataKindFileContent),
		Resource: path,
		Turn:     s.Turn,
		Value:    content,
		Retained: r.fits(content),
	}

	resourceKey := "file:" + path
	if currentTurnOnly {
		lastWrite, ok := s.ResourceLastWriteTurn[resourceKey]
		if !ok || lastWrite != s.Turn {
			s.Tainted = true
		}
	}
	return id
}

// RefStatus describes why a $ref did or did not resolve cleanly, used by
// the pre-flight evaluator's CollectRefs/classification step.
type RefStatus struct {
	ID      string
	Missing bool
	Stale   bool
	NonUser bool
}

// ClassifyRefs reports, for each id in ids, whether it is missing from the
// session, stale (present but not from the current turn, when
// currentTurnOnly applies), or non-user (present but not a user_prompt
// node, when forbidNonUserData applies).
func (r *Registry) ClassifyRefs(sessionID string, ids []string, currentTurnOnly, forbidNonUserData bool) []RefStatus {
	s := r.session(sessionID)

	out := make([]RefStatus, 0, len(ids))
	for _, id := range ids {
		node, ok := s.Data[id]
		if !ok {
			out = append(out, RefStatus{ID: id, Missing: true})
			continue
		}
		status := RefStatus{ID: id}
		if currentTurnOnly && node.Turn != s.Turn {
			status.Stale = true
		}
		if forbidNonUserData && node.Kind != string(provtypes.DataKindUserPrompt) {
			status.NonUser = true
		}
		out = append(out, status)
	}
	return out
}

// ResolveRefs deep-walks params, replacing any mapping containing a $ref or
// ref string key with the referenced node's stored value. Substitution is
// recursive over containers but not over the substituted value itself — one
// level of indirection. Fails closed with CodeProvRefUnresolved if any
// referenced id is absent from this session's data, or present but its
// value was not retained.
func (r *Registry) ResolveRefs(sessionID string, params any) (any, error) {
	s := r.session(sessionID)
	return resolveValue(s, params)
}

func resolveValue(s *Session, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if ref, ok := refKey(val); ok {
			node, exists := s.Data[ref]
			if !exists || !node.Retained {
				return nil, gateerr.Errorf(gateerr.CodeProvRefUnresolved, "unresolved $ref: %s", ref)
			}
			return node.Value, nil
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			resolved, err := resolveValue(s, child)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolved, err := resolveValue(s, child)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func refKey(m map[string]any) (string, bool) {
	if v, ok := m["$ref"]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	if v, ok := m["ref"]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// CollectRefs deep-walks params without resolving, returning the set of
// referenced ids. Used by the pre-flight evaluator to classify refs before
// deciding whether resolution should even be attempted.
func CollectRefs(params any) []string {
	seen := map[string]bool{}
	collectRefsInto(params, seen)
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

func collectRefsInto(v any, seen map[string]bool) {
	switch val := v.(type) {
	case map[string]any:
		if id, ok := refKey(val); ok {
			seen[id] = true
			return
		}
		for _, child := range val {
			collectRefsInto(child, seen)
		}
	case []any:
		for _, child := range val {
			collectRefsInto(child, seen)
		}
	}
}

// CommitPendingWrite, on ok, commits every declared path to
// ResourceLastWriteTurn at the pending write's originating turn and removes
// the entry. Called at most once per tool-call id — a second record with
// the same id is a no-op because the entry no longer exists.
func (r *Registry) CommitPendingWrite(sessionID, toolCallID string, ok bool) {
	s := r.session(sessionID)
	pw, exists := s.PendingWrites[toolCallID]
	if !exists {
		return
	}
	if ok {
		for _, path := range pw.Paths {
			s.ResourceLastWriteTurn["file:"+path] = pw.Turn
		}
	}
	delete(s.PendingWrites, toolCallID)
}

// AddPendingWrite records a PendingWrite for the current turn under
// toolCallID (synthesizing one if the caller did not supply it).
func (r *Registry) AddPendingWrite(sessionID, toolCallID string, paths []string) string {
	s := r.session(sessionID)
	if toolCallID == "" {
		toolCallID = uuid.NewString()
	}
	s.PendingWrites[toolCallID] = &PendingWrite{
		ToolCallID: toolCallID,
		Paths:      paths,
		Turn:       s.Turn,
		CreatedAt:  r.now(),
	}
	return toolCallID
}

// Snapshot returns a read-only view of the session's current turn and
// taint flag, used by the pre-flight evaluator.
func (r *Registry) Snapshot(sessionID string) (turn int, tainted bool) {
	s := r.session(sessionID)
	return s.Turn, s.Tainted
}

func (r *Registry) fits(v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return len(raw) <= r.maxStoredValueBytes
}
