// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package netfw checks an outbound network target against the policy's
// per-channel allowlist. Patterns are dot-segment globs over hostname
// labels — the same matching algorithm the capability model elsewhere in
// this codebase uses for dotted capability names, generalized here to
// dotted hostnames: a "*" segment matches one or more labels, and a "*"
// inside a single label matches zero or more characters within it.
package netfw

import (
	"strings"

	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
)

const maxSegments = 32

// Match reports whether host matches pattern.
func Match(pattern, host string) (bool, error) {
	if pattern == "" || host == "" {
		return false, nil
	}
	if !isValidDottedString(pattern) || !isValidDottedString(host) {
		return false, nil
	}

	patternSegments := strings.Split(pattern, ".")
	hostSegments := strings.Split(host, ".")

	if len(patternSegments) > maxSegments {
		return false, gateerr.Errorf(gateerr.CodeNetworkNotAllowlisted, "pattern exceeds maximum %d segments: got %d", maxSegments, len(patternSegments))
	}
	if len(hostSegments) > maxSegments {
		return false, gateerr.Errorf(gateerr.CodeNetworkNotAllowlisted, "host exceeds maximum %d segments: got %d", maxSegments, len(hostSegments))
	}

	memo := make(map[[2]int]bool)
	seen := make(map[[2]int]bool)

	var match func(pi, hi int) bool
	match = func(pi, hi int) bool {
		key := [2]int{pi, hi}
		if seen[key] {
			return memo[key]
		}
		seen[key] = true

		if pi == len(patternSegments) {
			memo[key] = hi == len(hostSegments)
			return memo[key]
		}
		if hi == len(hostSegments) {
			memo[key] = false
			return false
		}

		segment := patternSegments[pi]
		if segment == "*" {
			for next := hi + 1; next <= len(hostSegments); next++ {
				if match(pi+1, next) {
					memo[key] = true
					return true
				}
			}
			memo[key] = false
			return false
		}

		if !matchSegment(segment, hostSegments[hi]) {
			memo[key] = false
			return false
		}

		memo[key] = match(pi+1, hi+1)
		return memo[key]
	}

	return match(0, 0), nil
}

func matchSegment(patternSegment, hostSegment string) bool {
	if patternSegment == hostSegment {
		return true
	}
	if !strings.Contains(patternSegment, "*") {
		return false
	}
	return matchInSegmentGlob(patternSegment, hostSegment)
}

func isValidDottedString(s string) bool {
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	return !strings.Contains(s, "..")
}

func matchInSegmentGlob(pattern, text string) bool {
	pi, ti := 0, 0
	star := -1
	match := 0

	for ti < len(text) {
		if pi < len(pattern) && pattern[pi] == text[ti] {
			pi++
			ti++
			continue
		}
		if pi < len(pattern) && pattern[pi] == '*' {
			star = pi
			match = ti
			pi++
			continue
		}
		if star != -1 {
			pi = star + 1
			match++
			ti = match
			continue
		}
		return false
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// Allowed reports whether host is permitted for channel under p's network
// policy. A channel with no configured allowlist denies everything — the
// absence of a section is not an implicit allow-all.
func Allowed(p *policy.Policy, channel, host string) bool {
	patterns, ok := p.Network.Allowlist[channel]
	if !ok {
		return false
	}
	for _, pattern := range patterns {
		if ok, err := Match(pattern, host); err == nil && ok {
			return true
		}
	}
	return false
}
