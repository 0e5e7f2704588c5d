// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package policy loads, normalizes, and caches the declarative policy
// document that governs every evaluator in the gate. The document is
// deliberately tolerant: a missing or malformed file, or an individual field
// of the wrong JSON type, falls back to defaults rather than failing the
// load — the policy store never throws.
package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
)

// DefaultPolicyPath is the fixed location the store reads at process start.
const DefaultPolicyPath = "~/.openclaw/policy.json"

const (
	defaultMinLength         = 20
	defaultEntropyThreshold  = 3.5
	defaultMaxStoredValue    = 32 * 1024
	defaultTurnIdleMs        = 15000
)

// NetworkPolicy maps a channel name to the allowlist patterns applicable to it.
type NetworkPolicy struct {
	Allowlist map[string][]string `json:"allowlist"`
}

// SecretsExceptions suppresses secret flags by tool name or dotted field path.
type SecretsExceptions struct {
	Tools  []string `json:"tools"`
	Fields []string `json:"fields"`
}

// SecretsPolicy configures the secret scanner.
type SecretsPolicy struct {
	Enabled          bool              `json:"enabled"`
	MinLength        int               `json:"minLength"`
	EntropyThreshold float64           `json:"entropyThreshold"`
	Exceptions       SecretsExceptions `json:"exceptions"`
}

// ProvenancePolicy configures the provenance registry, turn automaton, and
// pre-flight evaluator.
type ProvenancePolicy struct {
	Enabled                 bool     `json:"enabled"`
	CurrentTurnOnly          bool     `json:"currentTurnOnly"`
	ForbidNonUserData        bool     `json:"forbidNonUserData"`
	RequireCleanForHighRisk  bool     `json:"requireCleanForHighRisk"`
	OnViolation              string   `json:"onViolation"`
	HighRiskTools            []string `json:"highRiskTools"`
	TrustedObservationTools  []string `json:"trustedObservationTools"`
	FileWriteTools           []string `json:"fileWriteTools"`
	FileReadTools            []string `json:"fileReadTools"`
	MaxStoredValueBytes      int      `json:"maxStoredValueBytes"`
	TurnIdleMs               int      `json:"turnIdleMs"`
}

// RestrictedPaths names prefixes the path resolver refuses outright.
type RestrictedPaths struct {
	SystemCritical []string `json:"systemCritical"`
}

// UserSpace names home-relative folders that deny on any access.
type UserSpace struct {
	DenyOnAnyAccess []string `json:"denyOnAnyAccess"`
}

// Policy is an immutable per-load snapshot of the declarative policy
// document. Callers never mutate a *Policy in place; Store.Load returns a
// fresh value each time the underlying file changes.
type Policy struct {
	Version         int              `json:"version"`
	Enabled         bool             `json:"enabled"`
	AllowedRoots    []string         `json:"allowedRoots"`
	RestrictedPaths RestrictedPaths  `json:"restrictedPaths"`
	UserSpace       UserSpace        `json:"userSpace"`
	Network         NetworkPolicy    `json:"network"`
	Secrets         SecretsPolicy    `json:"secrets"`
	Provenance      ProvenancePolicy `json:"provenance"`
}

// Default returns the built-in policy applied when no file is present, the
// file is malformed, or enabled is omitted.
func Default() *Policy {
	return &Policy{
		Version: 1,
		Enabled: true,
		AllowedRoots: nil,
		RestrictedPaths: RestrictedPaths{
			SystemCritical: []string{"/etc", "/usr", "/var", "/sys", "/proc", "/boot", "/sbin"},
		},
		UserSpace: UserSpace{
			DenyOnAnyAccess: []string{".ssh", ".gnupg", ".aws"},
		},
		Network: NetworkPolicy{Allowlist: map[string][]string{}},
		Secrets: SecretsPolicy{
			Enabled:          true,
			MinLength:        defaultMinLength,
			EntropyThreshold: defaultEntropyThreshold,
			Exceptions: SecretsExceptions{
				Tools:  nil,
				Fields: []string{"buffer", "base64", "media"},
			},
		},
		Provenance: ProvenancePolicy{
			Enabled:                 true,
			CurrentTurnOnly:         true,
			ForbidNonUserData:       false,
			RequireCleanForHighRisk: true,
			OnViolation:             "deny",
			HighRiskTools:           []string{"exec", "message", "email", "payment"},
			TrustedObservationTools: []string{},
			FileWriteTools:          []string{"write", "edit", "patch"},
			FileReadTools:           []string{"read", "cat"},
			MaxStoredValueBytes:     defaultMaxStoredValue,
			TurnIdleMs:              defaultTurnIdleMs,
		},
	}
}

// Store loads, normalizes, and caches the policy document keyed by its
// resolved path. Callers that want a fresh read (tests, an operator
// re-running `validate`) call Reload explicitly rather than relying on a
// package-level reset — the store holds no global state of its own.
type Store struct {
	path string

	mu     sync.RWMutex
	cached *Policy
	loaded bool
}

// NewStore creates a Store bound to path. An empty path resolves to
// DefaultPolicyPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPolicyPath
	}
	return &Store{path: path}
}

// Load returns the cached policy, loading and normalizing it from disk on
// first call. The load never fails: a missing or malformed file yields
// Default().
func (s *Store) Load() *Policy {
	s.mu.RLock()
	if s.loaded {
		p := s.cached
		s.mu.RUnlock()
		return p
	}
	s.mu.RUnlock()

	return s.Reload()
}

// Reload re-reads and re-normalizes the policy document, replacing the
// cached value, and returns the fresh snapshot.
func (s *Store) Reload() *Policy {
	p := loadFromDisk(s.path)

	s.mu.Lock()
	s.cached = p
	s.loaded = true
	s.mu.Unlock()

	return p
}

func loadFromDisk(path string) *Policy {
	resolved, err := expandHome(path)
	if err != nil {
		return Default()
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return Default()
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Default()
	}

	return normalize(doc)
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", gateerr.Wrap(err, gateerr.CodePolicyLoadFailure, "resolving home directory")
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// normalize fills every field of the policy from doc, falling back to the
// default for any field that is missing or has the wrong JSON type. This is
// deliberately hand-rolled rather than a strict decode: a policy document
// with one bad field must not invalidate the whole document.
func normalize(doc map[string]any) *Policy {
	d := Default()
	p := Default()

	p.Version = intField(doc, "version", d.Version)
	p.Enabled = boolField(doc, "enabled", d.Enabled)
	p.AllowedRoots = stringSliceField(doc, "allowedRoots", d.AllowedRoots)

	if rp, ok := objectField(doc, "restrictedPaths"); ok {
		p.RestrictedPaths.SystemCritical = stringSliceField(rp, "systemCritical", d.RestrictedPaths.SystemCritical)
	}

	if us, ok := objectField(doc, "userSpace"); ok {
		p.UserSpace.DenyOnAnyAccess = stringSliceField(us, "denyOnAnyAccess", d.UserSpace.DenyOnAnyAccess)
	}

	if nw, ok := objectField(doc, "network"); ok {
		p.Network.Allowlist = stringSliceMapField(nw, "allowlist", d.Network.Allowlist)
	}

	if sec, ok := objectField(doc, "secrets"); ok {
		p.Secrets.Enabled = boolField(sec, "enabled", d.Secrets.Enabled)
		p.Secrets.MinLength = intField(sec, "minLength", d.Secrets.MinLength)
		p.Secrets.EntropyThreshold = floatField(sec, "entropyThreshold", d.Secrets.EntropyThreshold)
		if exc, ok := objectField(sec, "exceptions"); ok {
			p.Secrets.Exceptions.Tools = stringSliceField(exc, "tools", d.Secrets.Exceptions.Tools)
			p.Secrets.Exceptions.Fields = stringSliceField(exc, "fields", d.Secrets.Exceptions.Fields)
		}
	}

	if prov, ok := objectField(doc, "provenance"); ok {
		p.Provenance.Enabled = boolField(prov, "enabled", d.Provenance.Enabled)
		p.Provenance.CurrentTurnOnly = boolField(prov, "currentTurnOnly", d.Provenance.CurrentTurnOnly)
		p.Provenance.ForbidNonUserData = boolField(prov, "forbidNonUserData", d.Provenance.ForbidNonUserData)
		p.Provenance.RequireCleanForHighRisk = boolField(prov, "requireCleanForHighRisk", d.Provenance.RequireCleanForHighRisk)
		p.Provenance.OnViolation = stringField(prov, "onViolation", d.Provenance.OnViolation)
		p.Provenance.HighRiskTools = stringSliceField(prov, "highRiskTools", d.Provenance.HighRiskTools)
		p.Provenance.TrustedObservationTools = stringSliceField(prov, "trustedObservationTools", d.Provenance.TrustedObservationTools)
		p.Provenance.FileWriteTools = stringSliceField(prov, "fileWriteTools", d.Provenance.FileWriteTools)
		p.Provenance.FileReadTools = stringSliceField(prov, "fileReadTools", d.Provenance.FileReadTools)
		p.Provenance.MaxStoredValueBytes = intField(prov, "maxStoredValueBytes", d.Provenance.MaxStoredValueBytes)
		p.Provenance.TurnIdleMs = intField(prov, "turnIdleMs", d.Provenance.TurnIdleMs)
	}

	return p
}

func objectField(doc map[string]any, key string) (map[string]any, bool) {
	v, ok := doc[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func boolField(doc map[string]any, key string, def bool) bool {
	v, ok := doc[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func intField(doc map[string]any, key string, def int) int {
	v, ok := doc[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return int(f)
}

func floatField(doc map[string]any, key string, def float64) float64 {
	v, ok := doc[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return f
}

func stringField(doc map[string]any, key string, def string) string {
	v, ok := doc[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func stringSliceField(doc map[string]any, key string, def []string) []string {
	v, ok := doc[key]
	if !ok {
		return def
	}
	raw, ok := v.([]any)
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func stringSliceMapField(doc map[string]any, key string, def map[string][]string) map[string][]string {
	v, ok := doc[key]
	if !ok {
		return def
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return def
	}
	out := make(map[string][]string, len(raw))
	for k, val := range raw {
		out[k] = stringSliceField(map[string]any{k: val}, k, nil)
	}
	return out
}
