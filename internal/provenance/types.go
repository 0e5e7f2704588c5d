// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provenance implements the per-session data-origin graph (the
// Provenance Registry) and the deterministic turn automaton layered on top
// of it. Both are exposed through an explicit Registry handle — there is no
// package-level session map or singleton; callers create one Registry at
// program start and thread it through.
package provenance

import "time"

// DataNode is a single entry in a session's provenance graph, identified by
// an id of shape "<prefix>:t<turn>:<suffix>" where prefix names the kind
// of event that produced it.
type DataNode struct {
	ID       string
	Kind     string
	ToolName string
	Resource string
	Turn     int
	Value    any
	Retained bool
}

// PendingWrite records the paths a file-write tool declared, to be
// committed to ResourceLastWriteTurn once the matching observation confirms
// success.
type PendingWrite struct {
	ToolCallID string
	Paths      []string
	Turn       int
	CreatedAt  time.Time
}

// Session is the per-session mutable state: turn counter, taint flag, the
// data-node graph, and bookkeeping for file writes. A Session is never
// accessed concurrently by more than one goroutine at a time — the engine
// assumes a single-writer-per-session discipline enforced by the caller
// (the agent harness serializes tool calls within a session) — so the
// fields below carry no per-session lock of their own; only the Registry's
// session map needs synchronization.
type Session struct {
	ID                    string
	Turn                  int
	Tainted               bool
	LastEventAt           time.Time
	Data                  map[string]*DataNode
	ResourceLastWriteTurn map[string]int
	PendingWrites         map[string]*PendingWrite
}

func newSession(id string) *Session {
	return &Session{
		ID:                    id,
		Turn:                  0,
		Tainted:               false,
		Data:                  make(map[string]*DataNode),
		ResourceLastWriteTurn: make(map[string]int),
		PendingWrites:         make(map[string]*PendingWrite),
	}
}
