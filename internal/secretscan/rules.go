// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secretscan

import (
	_ "embed"
	"regexp"
	"strings"
	"sync"
	"unicode"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed db/patterns.yml
var patternsYAML []byte

type dbFile struct {
	Patterns []dbEntry `yaml:"patterns"`
}

type dbEntry struct {
	Pattern dbPattern `yaml:"pattern"`
}

type dbPattern struct {
	Name       string `yaml:"name"`
	Regex      string `yaml:"regex"`
	Confidence string `yaml:"confidence"`
}

type rule struct {
	name    string
	pattern *regexp.Regexp
}

var (
	rulesOnce sync.Once
	rules     []rule
	rulesErr  error
)

// loadRules parses the embedded pattern database and compiles every
// high-confidence entry. Medium- and low-confidence patterns are excluded:
// they produce too many false positives in general-purpose tool parameters.
// Any compile failure in a high-confidence pattern aborts startup — the
// scanner cannot guarantee coverage with a partially loaded rule set, and a
// scanner that silently ran with fewer rules than configured would be
// indistinguishable from one that is working correctly, which is worse than
// failing loudly.
func loadRules() ([]rule, error) {
	rulesOnce.Do(func() {
		var f dbFile
		if err := yaml.Unmarshal(patternsYAML, &f); err != nil {
			rulesErr = gateerr.Errorf(gateerr.CodeSecretsRuleInvalid, "parsing embedded secret pattern database: %w", err)
			return
		}

		seen := make(map[string]bool, len(f.Patterns))
		var failed []string
		for _, entry := range f.Patterns {
			p := entry.Pattern
			if p.Confidence != "high" {
				continue
			}

			name := toSnakeCase(p.Name)
			if seen[name] {
				continue
			}
			seen[name] = true

			re, err := regexp.Compile(p.Regex)
			if err != nil {
				failed = append(failed, name)
				continue
			}
			rules = append(rules, rule{name: name, pattern: re})
		}

		if len(failed) > 0 {
			rulesErr = gateerr.Errorf(gateerr.CodeSecretsRuleInvalid,
				"%d high-confidence pattern(s) failed to compile: %v", len(failed), failed)
			return
		}
		if len(rules) == 0 {
			rulesErr = gateerr.New(gateerr.CodeSecretsRuleInvalid, "zero high-confidence patterns loaded")
		}
	})
	return rules, rulesErr
}

func toSnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	prevWasUnderscore := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			prevWasUnderscore = false
		default:
			if !prevWasUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevWasUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
