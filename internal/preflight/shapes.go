// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package preflight

import "net/url"

// pathShapeKeys are the top-level parameter keys the shape-key heuristic
// recognizes as carrying a single declared path.
var pathShapeKeys = []string{"path", "filePath", "filename", "target", "dst", "to", "src", "from"}

// netDestinationKeys are the top-level parameter keys the shape-key
// heuristic recognizes as carrying an outbound network destination, tried
// in order.
var netDestinationKeys = []string{"url", "webhook", "to"}

// extractChannelDestination pulls a (channel, host) pair out of params for
// the network allowlist check. A call with no "channel" key, or whose
// destination key is not a parseable URL or bare hostname, yields ok=false
// — the caller then skips the network check rather than guessing.
func extractChannelDestination(params any) (channel, host string, ok bool) {
	m, isMap := params.(map[string]any)
	if !isMap {
		return "", "", false
	}

	channel, hasChannel := m["channel"].(string)
	if !hasChannel || channel == "" {
		return "", "", false
	}

	for _, key := range netDestinationKeys {
		raw, present := m[key].(string)
		if !present || raw == "" {
			continue
		}
		host, ok = hostOf(raw)
		if ok {
			return channel, host, true
		}
	}
	return "", "", false
}

func hostOf(raw string) (string, bool) {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Hostname(), true
	}
	if !containsAny(raw, "/ \t\n") {
		return raw, true
	}
	return "", false
}

func containsAny(s, chars string) bool {
	for _, c := range chars {
		for _, r := range s {
			if r == c {
				return true
			}
		}
	}
	return false
}

// patchPathKeys are the keys recognized within each element of a
// "patches" array.
var patchPathKeys = []string{"path", "filePath"}

// extractPaths applies the shape-key heuristic to params, returning every
// path string it recognizes. The heuristic is intentionally shallow and
// conservative: it looks at the named top-level keys and at the elements
// of a top-level "patches" array, nothing deeper. An unrecognized shape
// yields zero paths, which the orchestrator treats as a deny.
func extractPaths(params any) []string {
	m, ok := params.(map[string]any)
	if !ok {
		return nil
	}

	var paths []string
	for _, key := range pathShapeKeys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				paths = append(paths, s)
			}
		}
	}

	if rawPatches, ok := m["patches"].([]any); ok {
		for _, item := range rawPatches {
			patch, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range patchPathKeys {
				if v, ok := patch[key]; ok {
					if s, ok := v.(string); ok && s != "" {
						paths = append(paths, s)
					}
				}
			}
		}
	}

	return paths
}

// extractCommand pulls the exec tool's command string and argv list out of
// params, if present.
func extractCommand(params any) (command string, argv []string) {
	m, ok := params.(map[string]any)
	if !ok {
		return "", nil
	}
	if s, ok := m["command"].(string); ok {
		command = s
	}
	if raw, ok := m["argv"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				argv = append(argv, s)
			}
		}
	}
	return command, argv
}
