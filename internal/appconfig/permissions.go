// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package appconfig

import (
	"io/fs"
	"log/slog"
	"os"
)

const (
	groupRead fs.FileMode = 0o040
	otherRead fs.FileMode = 0o004
)

// WarnInsecurePermissions checks whether path is group- or world-readable
// and, if so, logs a warning tagged with kind (e.g. "policy file", "audit
// database") so the operator can tell which of the gate's several
// security-relevant files is exposed. It reports the finding rather than
// acting on it — doctor and validate fold the boolean into their own
// diagnostic text instead of relying on stderr output alone.
func WarnInsecurePermissions(kind, path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat file for permission check", "kind", kind, "path", path, "error", err)
		return false
	}

	perm := info.Mode().Perm()
	if perm&(groupRead|otherRead) == 0 {
		return false
	}

	slog.Warn(
		"file has insecure permissions — may be exposed to other users",
		"kind", kind,
		"path", path,
		"mode", info.Mode(),
		"recommended", "0600",
	)
	return true
}
