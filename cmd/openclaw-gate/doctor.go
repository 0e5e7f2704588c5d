// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/openclaw-dev/openclaw-gate/internal/appconfig"
	"github.com/openclaw-dev/openclaw-gate/internal/approval"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		Long:  "Check the binary version, policy file permissions, approval bridge reachability, and audit database disk space.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return gateerr.Wrap(err, gateerr.CodeCLISetupFailure, "loading appconfig")
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Policy file", func() string { return checkPolicyPermissions(expandTilde(cfg.PolicyPath)) }},
		{"Approval bridge", checkApprovalBridge},
		{"Audit DB disk space", func() string { return checkDiskSpace(expandTilde(cfg.AuditDBPath)) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("openclaw-gate %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkPolicyPermissions(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("not found at %s (running on built-in defaults)", path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if appconfig.WarnInsecurePermissions("policy file", path) {
		return fmt.Sprintf("present at %s, mode %s (insecure — readable by group/other, recommend 0600)", path, info.Mode().Perm())
	}
	return fmt.Sprintf("present at %s, mode %s", path, info.Mode().Perm())
}

func checkApprovalBridge() string {
	descriptor, ok := approval.DescriptorFromEnv()
	if !ok {
		return "not configured (OPENCLAW_APPROVAL_SOCKET unset; confirm verdicts will deny)"
	}

	conn, err := net.DialTimeout("unix", descriptor.SocketPath, 2*time.Second)
	if err != nil {
		return fmt.Sprintf("configured at %s but unreachable: %s", descriptor.SocketPath, err)
	}
	_ = conn.Close()
	return fmt.Sprintf("reachable at %s", descriptor.SocketPath)
}

func checkDiskSpace(dbPath string) string {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available at " + dir
}

func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
