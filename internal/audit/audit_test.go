// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw-dev/openclaw-gate/internal/audit"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *audit.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := audit.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndQuery_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	entry := &audit.Entry{
		Timestamp:  time.Now(),
		SessionID:  "s1",
		ToolName:   "exec",
		ToolCallID: "call-1",
		Verdict:    provtypes.VerdictDeny,
		RuleID:     provtypes.RuleProvHighRiskAfterUntrusted,
		Reason:     "untrusted data entered this turn",
		Metadata:   map[string]any{"foo": "bar"},
	}
	require.NoError(t, s.Append(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	got, err := s.Query(ctx, audit.Filter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry.ID, got[0].ID)
	assert.Equal(t, provtypes.VerdictDeny, got[0].Verdict)
	assert.Equal(t, provtypes.RuleProvHighRiskAfterUntrusted, got[0].RuleID)
	assert.Equal(t, "bar", got[0].Metadata["foo"])
}

func TestQuery_FiltersByVerdict(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &audit.Entry{Timestamp: time.Now(), SessionID: "s1", Verdict: provtypes.VerdictAllow}))
	require.NoError(t, s.Append(ctx, &audit.Entry{Timestamp: time.Now(), SessionID: "s1", Verdict: provtypes.VerdictDeny}))

	denied, err := s.Query(ctx, audit.Filter{SessionID: "s1", Verdict: provtypes.VerdictDeny})
	require.NoError(t, err)
	assert.Len(t, denied, 1)
}

type failingSink struct{ calls int }

func (f *failingSink) Append(ctx context.Context, entry *audit.Entry) error {
	f.calls++
	return errors.New("disk full")
}
func (f *failingSink) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	return nil, nil
}
func (f *failingSink) Close() error { return nil }

func TestAppendBestEffort_NeverPanicsOnFailure(t *testing.T) {
	sink := &failingSink{}
	assert.NotPanics(t, func() {
		audit.AppendBestEffort(context.Background(), sink, &audit.Entry{SessionID: "s1"})
	})
	assert.Equal(t, 1, sink.calls)
}

func TestAppendBestEffort_NilSinkIsNoOp(t *testing.T) {
	assert.NotPanics(t, func() {
		audit.AppendBestEffort(context.Background(), nil, &audit.Entry{SessionID: "s1"})
	})
}
