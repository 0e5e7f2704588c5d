// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secretscan walks arbitrary JSON-shaped tool parameters looking
// for embedded secrets: strings that are both long and high-entropy, and
// that additionally match a known credential shape (API key prefixes,
// bearer tokens, PEM blocks, JWTs). Detection is fatal — the caller
// converts a hit into a deny, never a silent redaction of the call.
package secretscan

import (
	"strings"

	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of scanning one parameter tree.
type Result struct {
	Detected   bool
	FirstField string
	Count      int
}

// Scanner holds the compiled rule set and the policy-derived thresholds it
// was constructed with.
type Scanner struct {
	minLength        int
	entropyThreshold float64
	exceptTools      map[string]bool
	exceptFields     map[string]bool
	rules            []rule
}

// New builds a Scanner from the secrets section of a loaded policy. It
// returns an error if the embedded pattern database fails to load — that
// failure is structural (a bad build), not a per-call condition, so callers
// should treat it as fatal at construction time rather than per scan.
func New(p *policy.Policy) (*Scanner, error) {
	rs, err := loadRules()
	if err != nil {
		return nil, err
	}

	tools := make(map[string]bool, len(p.Secrets.Exceptions.Tools))
	for _, t := range p.Secrets.Exceptions.Tools {
		tools[t] = true
	}
	fields := make(map[string]bool, len(p.Secrets.Exceptions.Fields))
	for _, f := range p.Secrets.Exceptions.Fields {
		fields[f] = true
	}

	return &Scanner{
		minLength:        p.Secrets.MinLength,
		entropyThreshold: p.Secrets.EntropyThreshold,
		exceptTools:      tools,
		exceptFields:     fields,
		rules:            rs,
	}, nil
}

// Scan recursively visits params (a JSON-shaped tree of maps, slices, and
// scalars) looking for secret-shaped strings. If tool is in the exception
// list the scan is skipped entirely and Result is empty.
func (s *Scanner) Scan(tool string, params any) Result {
	if s.exceptTools[tool] {
		return Result{}
	}

	var result Result
	s.walk("", params, &result)
	return result
}

func (s *Scanner) walk(path string, v any, result *Result) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			s.walk(childPath, child, result)
		}
	case []any:
		for _, child := range val {
			s.walk(path, child, result)
		}
	case string:
		s.checkString(path, val, result)
	}
}

func (s *Scanner) checkString(path, raw string, result *Result) {
	if s.exceptField(path) {
		return
	}

	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < s.minLength {
		return
	}

	normalized := normalizeForScan(trimmed)
	if shannonEntropy(normalized) < s.entropyThreshold {
		return
	}

	for _, r := range s.rules {
		if r.pattern.MatchString(normalized) {
			result.Count++
			if !result.Detected {
				result.Detected = true
				result.FirstField = path
			}
			return
		}
	}
}

// exceptField reports whether path is suppressed, matching either the full
// dotted path or its leaf segment against the exception list — policies
// commonly name a field like "buffer" or "base64" without the full path
// prefix it may appear under.
func (s *Scanner) exceptField(path string) bool {
	if s.exceptFields[path] {
		return true
	}
	leaf := path
	if idx := strings.LastIndex(path, "."); idx != -1 {
		leaf = path[idx+1:]
	}
	return s.exceptFields[leaf]
}

var invisibleCharReplacer = strings.NewReplacer(
	"​", "", "‌", "", "‍", "", "\uFEFF", "", "­", "",
	"͏", "", "؜", "", "᠎", "", "⁠", "", "⁡", "",
	"⁢", "", "⁣", "", "⁤", "",
)

// normalizeForScan strips invisible Unicode evasion characters and applies
// NFKC normalization before entropy/pattern checks, so a secret padded with
// zero-width characters does not slip past the scanner.
func normalizeForScan(s string) string {
	s = invisibleCharReplacer.Replace(s)
	return norm.NFKC.String(s)
}
