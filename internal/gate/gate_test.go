// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package gate_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openclaw-dev/openclaw-gate/internal/audit"
	"github.com/openclaw-dev/openclaw-gate/internal/gate"
	"github.com/openclaw-dev/openclaw-gate/internal/policy"
	"github.com/openclaw-dev/openclaw-gate/internal/provenance"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	entries []*audit.Entry
}

func (f *fakeSink) Append(ctx context.Context, entry *audit.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeSink) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	return f.entries, nil
}

func (f *fakeSink) Close() error { return nil }

func newEngine(t *testing.T) (*gate.Engine, *fakeSink) {
	t.Helper()
	store := policy.NewStore(filepath.Join(t.TempDir(), "missing-policy.json"))
	reg := provenance.NewRegistry()
	sink := &fakeSink{}
	return gate.NewEngine(store, reg, nil, sink), sink
}

func TestWrap_AllowedCallDecoratesResultWithProvRef(t *testing.T) {
	eng, sink := newEngine(t)
	ctx := context.Background()

	_, err := eng.BeginUserTurn(ctx, "s1", "list files")
	require.NoError(t, err)

	out, err := eng.Wrap(ctx, "s1", "exec", map[string]any{"command": "ls -la"}, "call-1",
		func(ctx context.Context, params map[string]any) (any, error) {
			return map[string]any{"stdout": "a.txt\n"}, nil
		})
	require.NoError(t, err)

	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a.txt\n", result["stdout"])
	provRef, ok := result["__prov_ref"].(string)
	require.True(t, ok)
	assert.Contains(t, provRef, "obs:t")

	require.Len(t, sink.entries, 1)
	assert.Equal(t, provtypes.VerdictAllow, sink.entries[0].Verdict)
}

func TestWrap_BlockedCallReturnsErrorWithoutRecording(t *testing.T) {
	eng, sink := newEngine(t)
	ctx := context.Background()

	_, err := eng.BeginUserTurn(ctx, "s1", "do something")
	require.NoError(t, err)

	_, err = eng.Record(ctx, "s1", "web_fetch", "untrusted content", "", true)
	require.NoError(t, err)

	called := false
	_, err = eng.Wrap(ctx, "s1", "exec", map[string]any{"command": "rm -rf /"}, "call-2",
		func(ctx context.Context, params map[string]any) (any, error) {
			called = true
			return nil, nil
		})

	require.Error(t, err)
	assert.False(t, called, "blocked call must never invoke the underlying tool")
	require.Len(t, sink.entries, 1, "the block itself is still audited, as a deny decision")
	assert.Equal(t, provtypes.VerdictDeny, sink.entries[0].Verdict)
}

func TestWrap_ToolFailureIsRecordedThenReraised(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.BeginUserTurn(ctx, "s1", "write a file")
	require.NoError(t, err)

	toolErr := assert.AnError
	_, err = eng.Wrap(ctx, "s1", "write", map[string]any{"path": "/tmp/out.txt"}, "call-3",
		func(ctx context.Context, params map[string]any) (any, error) {
			return nil, toolErr
		})

	require.ErrorIs(t, err, toolErr)
}

func TestPreflight_ConfirmWithNoBridgeIsDeny(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.BeginUserTurn(ctx, "s1", "do something")
	require.NoError(t, err)

	_, err = eng.Record(ctx, "s1", "web_fetch", "untrusted", "", true)
	require.NoError(t, err)

	d, err := eng.Preflight(ctx, "s1", "exec", map[string]any{"command": "ls"}, "call-4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestPreflight_EmptySessionIDIsProgrammerError(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Preflight(ctx, "", "exec", map[string]any{"command": "ls"}, "")
	assert.Error(t, err)
}
