// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package execpolicy classifies shell commands proposed to the "exec" tool:
// it rejects shell-wrapped indirection outright and flags destructive verbs
// invoked with no explicit target. The compound-command splitting and
// base-command extraction here follow the same quote-aware tokenization
// idiom used by shell-command allowlist checkers elsewhere in the
// ecosystem, narrowed to the gate's two specific deny rules rather than a
// full per-verb allow/ask/deny classification.
package execpolicy

import (
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// shellWrappers name interpreters whose first two arguments indirectly
// execute a string the gate cannot itself inspect further.
var shellWrappers = map[string]bool{
	"bash":       true,
	"sh":         true,
	"zsh":        true,
	"ksh":        true,
	"dash":       true,
	"cmd":        true,
	"cmd.exe":    true,
	"powershell": true,
	"pwsh":       true,
}

var shellWrapFlags = map[string]bool{
	"-c":        true,
	"/c":        true,
	"-command":  true,
	"-encodedcommand": true,
}

// destructiveVerbs are commands whose effect is irreversible deletion or
// reformatting and that therefore require an explicit target argument.
var destructiveVerbs = map[string]bool{
	"rm":      true,
	"rmdir":   true,
	"del":     true,
	"rd":      true,
	"format":  true,
	"mkfs":    true,
	"dd":      true,
	"shred":   true,
	"wipe":    true,
	"sdelete": true,
}

// Decision is the outcome of classifying one exec invocation.
type Decision struct {
	Allowed bool
	RuleID  provtypes.RuleID

	// Rendered is the tokenized command re-quoted with shellescape, safe to
	// embed in a denial reason or audit entry without risking the original
	// (possibly attacker-controlled) whitespace or control characters being
	// reinterpreted by a terminal or log consumer.
	Rendered string
}

// Classify splits command into whitespace-respecting-quotes tokens and
// checks, in order: shell-wrapped indirection, then a destructive verb with
// no explicit target. An empty or unparseable command is allowed — it is
// the secret scanner and path firewall's job to catch content, not this
// classifier's.
func Classify(command string) Decision {
	tokens := tokenize(command)
	if len(tokens) == 0 {
		return Decision{Allowed: true}
	}

	rendered := shellescape.QuoteCommand(tokens)
	base, rest := baseCommand(tokens)

	if shellWrappers[base] {
		for _, arg := range rest {
			if shellWrapFlags[strings.ToLower(arg)] {
				return Decision{Allowed: false, RuleID: provtypes.RuleExecShellWrapped, Rendered: rendered}
			}
		}
	}

	if destructiveVerbs[base] && !hasExplicitTarget(rest) {
		return Decision{Allowed: false, RuleID: provtypes.RuleCommandDestructiveNoTarget, Rendered: rendered}
	}

	return Decision{Allowed: true, Rendered: rendered}
}

// baseCommand returns the first token that is not an inline environment
// variable assignment (FOO=bar) and not the "env" wrapper, plus the
// remaining tokens after it.
func baseCommand(tokens []string) (string, []string) {
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if isEnvAssignment(tok) {
			i++
			continue
		}
		if tok == "env" {
			i++
			continue
		}
		break
	}
	if i >= len(tokens) {
		return "", nil
	}
	base := strings.ToLower(baseName(tokens[i]))
	return base, tokens[i+1:]
}

func isEnvAssignment(tok string) bool {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return false
	}
	name := tok[:eq]
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func baseName(path string) string {
	if idx := strings.LastIndexAny(path, "/\\"); idx != -1 {
		return path[idx+1:]
	}
	return path
}

// hasExplicitTarget reports whether rest contains at least one argument
// that is not itself a flag (does not start with "-" or "/").
func hasExplicitTarget(rest []string) bool {
	for _, arg := range rest {
		if arg == "" {
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return true
	}
	return false
}

// tokenize splits command on whitespace while respecting single and double
// quoted spans, matching the compound-command-splitting idiom used for
// shell allowlist checks: quotes are consumed but not themselves preserved
// in the resulting token.
func tokenize(command string) []string {
	var tokens []string
	var b strings.Builder
	var quote rune

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// SplitCompound splits command on top-level &&, ||, ;, and | separators,
// respecting quotes, so the caller can classify each stage of a compound
// shell line independently.
func SplitCompound(command string) []string {
	var parts []string
	var b strings.Builder
	var quote rune

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
			i++
		case r == '|' && i+1 < len(runes) && runes[i+1] == '|':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
			i++
		case r == ';' || r == '|':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if strings.TrimSpace(b.String()) != "" {
		parts = append(parts, strings.TrimSpace(b.String()))
	}
	return parts
}
