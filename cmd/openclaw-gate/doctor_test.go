// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctor_RunsAllChecks(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"doctor"})

	err := root.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Binary:")
	assert.Contains(t, output, "Platform:")
	assert.Contains(t, output, "Policy file:")
	assert.Contains(t, output, "Approval bridge:")
	assert.Contains(t, output, "Audit DB disk space:")
}

func TestDoctor_ApprovalBridgeUnconfigured(t *testing.T) {
	t.Setenv("OPENCLAW_APPROVAL_SOCKET", "")

	output := checkApprovalBridge()
	assert.Contains(t, output, "not configured")
}
