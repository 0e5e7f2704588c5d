// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openclaw-dev/openclaw-gate/internal/appconfig"
	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and normalize the policy document, reporting the effective configuration",
		Long:  "Reads the policy file named by --policy (or the appconfig default), normalizes it field by field, and prints the resulting effective policy as JSON. A missing file or a field of the wrong type is reported, not treated as a fatal error — normalize() falls back to defaults per field.",
		RunE:  runValidate,
	}

	cmd.Flags().String("policy", "", "path to the policy document (defaults to the appconfig policy_path)")

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return gateerr.Wrap(err, gateerr.CodeCLISetupFailure, "loading appconfig")
	}

	policyPath, _ := cmd.Flags().GetString("policy")
	if policyPath == "" {
		policyPath = cfg.PolicyPath
	}

	if _, err := os.Stat(expandTilde(policyPath)); err != nil {
		fmt.Fprintf(w, "policy file not found at %s — reporting built-in defaults\n\n", policyPath)
	} else {
		if appconfig.WarnInsecurePermissions("policy file", expandTilde(policyPath)) {
			fmt.Fprintf(w, "policy file: %s (insecure permissions, see warning log)\n\n", policyPath)
		} else {
			fmt.Fprintf(w, "policy file: %s\n\n", policyPath)
		}
	}

	store := policy.NewStore(policyPath)
	p := store.Load()

	encoded, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return gateerr.Wrap(err, gateerr.CodeCLISetupFailure, "encoding effective policy")
	}

	_, err = fmt.Fprintf(w, "effective policy:\n%s\n", encoded)
	return err
}

func expandTilde(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return path
}
