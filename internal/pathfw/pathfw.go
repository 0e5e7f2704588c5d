// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pathfw resolves a path string to an absolute, symlink-hardened
// canonical form and checks it against the allowed-roots / restricted-path /
// home-sensitive sections of the policy.
package pathfw

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// Decision is the outcome of a path-access check.
type Decision struct {
	Allowed  bool
	RuleID   provtypes.RuleID
	Resolved string
}

// Resolve expands ~, resolves relative paths against base, normalizes
// separators to forward slashes, and realpaths the target following
// symlinks. If the target does not exist, its parent is realpathed instead
// and the basename reattached; if the parent is also missing, the
// normalized non-realpathed form is returned rather than failing.
func Resolve(path, base string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(expanded) {
		if base == "" {
			var err error
			base, err = os.Getwd()
			if err != nil {
				return "", gateerr.Wrap(err, gateerr.CodePathResolveFailure, "resolving working directory")
			}
		}
		expanded = filepath.Join(base, expanded)
	}

	normalized := toForwardSlash(filepath.Clean(expanded))

	if resolved, err := filepath.EvalSymlinks(normalized); err == nil {
		return toForwardSlash(resolved), nil
	}

	parent := filepath.Dir(normalized)
	if resolvedParent, err := filepath.EvalSymlinks(parent); err == nil {
		return toForwardSlash(filepath.Join(resolvedParent, filepath.Base(normalized))), nil
	}

	return normalized, nil
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", gateerr.Wrap(err, gateerr.CodePathResolveFailure, "resolving home directory")
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

func toForwardSlash(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// under reports whether target is root itself or a descendant of root. Both
// arguments must already be forward-slash normalized.
func under(root, target string) bool {
	root = strings.TrimRight(root, "/")
	if root == "" {
		return false
	}
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+"/")
}

// Check resolves path against base and evaluates it against p's
// allowed-roots, restricted-paths, and home-sensitive sections, in that
// order.
func Check(p *policy.Policy, path, base string) Decision {
	resolved, err := Resolve(path, base)
	if err != nil {
		return Decision{Allowed: false, RuleID: provtypes.RulePathOutsideAllowedRoots}
	}

	if len(p.AllowedRoots) > 0 {
		inAnyRoot := false
		for _, root := range p.AllowedRoots {
			normRoot := toForwardSlash(filepath.Clean(root))
			if under(normRoot, resolved) {
				inAnyRoot = true
				break
			}
		}
		if !inAnyRoot {
			return Decision{Allowed: false, RuleID: provtypes.RulePathOutsideAllowedRoots, Resolved: resolved}
		}
	}

	for _, prefix := range p.RestrictedPaths.SystemCritical {
		normPrefix := toForwardSlash(filepath.Clean(prefix))
		if under(normPrefix, resolved) {
			return Decision{Allowed: false, RuleID: provtypes.RulePathBlocked, Resolved: resolved}
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeNorm := toForwardSlash(filepath.Clean(home))
		for _, folder := range p.UserSpace.DenyOnAnyAccess {
			sensitive := toForwardSlash(filepath.Join(homeNorm, folder))
			if under(sensitive, resolved) {
				return Decision{Allowed: false, RuleID: provtypes.RulePathHomeSensitive, Resolved: resolved}
			}
		}
	}

	return Decision{Allowed: true, Resolved: resolved}
}
