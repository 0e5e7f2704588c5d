// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := gateerr.New(
		gateerr.CodePolicyValidateInvalid,
		"invalid policy field",
		gateerr.FieldSessionID("sess-123"),
		gateerr.Field("field", "network.allowlist"),
	)

	require.Error(t, err)
	assert.Equal(t, gateerr.CodePolicyValidateInvalid, gateerr.CodeOf(err))
	assert.True(t, gateerr.HasCode(err, gateerr.CodePolicyValidateInvalid))

	fields := gateerr.FieldsOf(err)
	assert.Equal(t, "sess-123", fields["session_id"])
	assert.Equal(t, "network.allowlist", fields["field"])
}

func TestNewWithNoFields(t *testing.T) {
	err := gateerr.New(gateerr.CodeAuditAppendFailure, "connection lost")
	require.Error(t, err)
	assert.Equal(t, gateerr.CodeAuditAppendFailure, gateerr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := gateerr.Errorf(gateerr.CodePathResolveFailure, "resolving %s: port %d", "/tmp/x", 9090)
	require.Error(t, err)
	assert.Equal(t, gateerr.CodePathResolveFailure, gateerr.CodeOf(err))
	assert.Contains(t, err.Error(), "resolving /tmp/x: port 9090")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := gateerr.Errorf(gateerr.CodeAuditAppendFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, gateerr.CodeAuditAppendFailure, gateerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := gateerr.Wrap(
		root,
		gateerr.CodeProvSessionNotFound,
		"loading session",
		gateerr.FieldSessionID("sess-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, gateerr.CodeProvSessionNotFound, gateerr.CodeOf(err))
	assert.True(t, gateerr.IsNotFound(err))
	assert.Equal(t, "sess-42", gateerr.FieldsOf(err)["session_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, gateerr.Wrap(nil, gateerr.CodeGateInternalFailure, "ignored"))
}

func TestWrapfNilReturnsNil(t *testing.T) {
	assert.NoError(t, gateerr.Wrapf(nil, gateerr.CodeGateInternalFailure, "ignored %s", "arg"))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("timeout")
	err := gateerr.Wrapf(root, gateerr.CodeApprovalTimeout, "waiting on %s", "approval socket")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, gateerr.CodeApprovalTimeout, gateerr.CodeOf(err))
	assert.Contains(t, err.Error(), "waiting on approval socket")
}

func TestWrapWithFields(t *testing.T) {
	root := stderrors.New("denied")
	err := gateerr.Wrap(root, gateerr.CodeApprovalDenied, "approval check",
		gateerr.FieldTool("exec"),
		gateerr.FieldSessionID("sess-1"),
	)

	fields := gateerr.FieldsOf(err)
	assert.Equal(t, "exec", fields["tool"])
	assert.Equal(t, "sess-1", fields["session_id"])
}

// ---------------------------------------------------------------------------
// With
// ---------------------------------------------------------------------------

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := gateerr.New(gateerr.CodeApprovalDenied, "missing approval")
	withCtx := gateerr.With(base, gateerr.FieldTool("exec"))

	require.Error(t, withCtx)
	assert.Equal(t, gateerr.CodeApprovalDenied, gateerr.CodeOf(withCtx))
	assert.Equal(t, "exec", gateerr.FieldsOf(withCtx)["tool"])
}

func TestWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, gateerr.With(nil, gateerr.FieldTool("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	plain := stderrors.New("something broke")
	enriched := gateerr.With(plain, gateerr.FieldSessionID("s-1"))

	require.Error(t, enriched)
	assert.Equal(t, gateerr.CodeGateInternalFailure, gateerr.CodeOf(enriched))
	assert.Equal(t, "s-1", gateerr.FieldsOf(enriched)["session_id"])
}

// ---------------------------------------------------------------------------
// HasCode
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code gateerr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  gateerr.New(gateerr.CodeProvNodeNotFound, "gone"),
			code: gateerr.CodeProvNodeNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  gateerr.New(gateerr.CodeProvNodeNotFound, "gone"),
			code: gateerr.CodeAuditAppendFailure,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: gateerr.CodeProvNodeNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: gateerr.CodeGateInternalFailure,
			want: false,
		},
		{
			name: "wrapped coded error returns innermost code",
			err: gateerr.Wrap(
				gateerr.New(gateerr.CodeAuditAppendFailure, "inner"),
				gateerr.CodeGateInternalFailure, "outer",
			),
			code: gateerr.CodeAuditAppendFailure,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gateerr.HasCode(tt.err, tt.code))
		})
	}
}

// ---------------------------------------------------------------------------
// CodeOf
// ---------------------------------------------------------------------------

func TestCodeOfNil(t *testing.T) {
	assert.Equal(t, gateerr.Code(""), gateerr.CodeOf(nil))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, gateerr.Code(""), gateerr.CodeOf(stderrors.New("plain")))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := gateerr.New(gateerr.CodeAuditAppendFailure, "db")
	outer := gateerr.Wrap(inner, gateerr.CodeGateInternalFailure, "handler")
	assert.Equal(t, gateerr.CodeAuditAppendFailure, gateerr.CodeOf(outer))
}

// ---------------------------------------------------------------------------
// FieldsOf
// ---------------------------------------------------------------------------

func TestFieldsOfNil(t *testing.T) {
	assert.Nil(t, gateerr.FieldsOf(nil))
}

func TestFieldsOfPlainError(t *testing.T) {
	assert.Nil(t, gateerr.FieldsOf(stderrors.New("plain")))
}

// ---------------------------------------------------------------------------
// FieldValue / Field / typed field helpers
// ---------------------------------------------------------------------------

func TestFieldValueCreatesAttr(t *testing.T) {
	attr := gateerr.FieldValue("key", 42)
	assert.Equal(t, "key", attr.Key)
	assert.Equal(t, 42, attr.Value)
}

func TestFieldAliasMatchesFieldValue(t *testing.T) {
	a := gateerr.FieldValue("k", "v")
	b := gateerr.Field("k", "v")
	assert.Equal(t, a, b)
}

func TestTypedFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr gateerr.Attr
		key  string
		val  string
	}{
		{"session_id", gateerr.FieldSessionID("s-1"), "session_id", "s-1"},
		{"rule_id", gateerr.FieldRuleID("path.blocked"), "rule_id", "path.blocked"},
		{"path", gateerr.FieldPath("/etc/shadow"), "path", "/etc/shadow"},
		{"tool", gateerr.FieldTool("exec"), "tool", "exec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.val, tt.attr.Value)
		})
	}
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := gateerr.New(gateerr.CodeAuditAppendFailure, "oops",
		gateerr.Field("", "should-be-dropped"),
		gateerr.FieldTool("kept"),
	)
	fields := gateerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["tool"])
	assert.NotContains(t, fields, "")
}

// ---------------------------------------------------------------------------
// errors.Is / errors.As unwrapping
// ---------------------------------------------------------------------------

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := gateerr.Wrap(mid, gateerr.CodeGateInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

func TestErrorIsWithMultiWrap(t *testing.T) {
	sentinel := stderrors.New("original")
	first := gateerr.Wrap(sentinel, gateerr.CodeAuditAppendFailure, "layer 1")
	second := gateerr.Wrap(first, gateerr.CodeGateInternalFailure, "layer 2")

	assert.ErrorIs(t, second, sentinel)
	assert.Equal(t, gateerr.CodeAuditAppendFailure, gateerr.CodeOf(second))
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   gateerr.Code
		status int
		check  func(error) bool
	}{
		{name: "session not found", code: gateerr.CodeProvSessionNotFound, status: 404, check: gateerr.IsNotFound},
		{name: "node not found", code: gateerr.CodeProvNodeNotFound, status: 404, check: gateerr.IsNotFound},
		{name: "invalid value", code: gateerr.CodePolicyValidateInvalid, status: 400, check: gateerr.IsInvalidInput},
		{name: "invalid format", code: gateerr.CodeConfigParseInvalidFormat, status: 400, check: gateerr.IsInvalidInput},
		{name: "malformed response", code: gateerr.CodeApprovalMalformed, status: 500, check: func(_ error) bool { return true }},
		{name: "approval denied", code: gateerr.CodeApprovalDenied, status: 403, check: gateerr.IsDenied},
		{name: "timeout", code: gateerr.CodeApprovalTimeout, status: 504, check: gateerr.IsTimeout},
		{name: "internal", code: gateerr.CodeGateInternalFailure, status: 500, check: func(err error) bool { return !gateerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gateerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, gateerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	err := gateerr.New(gateerr.CodeAuditAppendFailure, "db error")
	assert.False(t, gateerr.IsNotFound(err))
	assert.False(t, gateerr.IsInvalidInput(err))
	assert.False(t, gateerr.IsDenied(err))
	assert.False(t, gateerr.IsTimeout(err))
}

func TestClassificationOnNilError(t *testing.T) {
	assert.False(t, gateerr.IsNotFound(nil))
	assert.False(t, gateerr.IsInvalidInput(nil))
	assert.False(t, gateerr.IsDenied(nil))
	assert.False(t, gateerr.IsTimeout(nil))
}

func TestClassificationOnPlainError(t *testing.T) {
	err := stderrors.New("plain")
	assert.False(t, gateerr.IsNotFound(err))
	assert.False(t, gateerr.IsInvalidInput(err))
	assert.False(t, gateerr.IsDenied(err))
	assert.False(t, gateerr.IsTimeout(err))
}

// ---------------------------------------------------------------------------
// HTTPStatus edge cases
// ---------------------------------------------------------------------------

func TestHTTPStatusNilReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, gateerr.HTTPStatus(nil))
}

func TestHTTPStatusPlainErrorReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, gateerr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := gateerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, gateerr.CodeGateInternalFailure, gateerr.CodeOf(joined))
}

// ---------------------------------------------------------------------------
// Nested wrapping preserves innermost code
// ---------------------------------------------------------------------------

func TestNestedWrapInnermostCodePersists(t *testing.T) {
	root := stderrors.New("io error")
	l1 := gateerr.Wrap(root, gateerr.CodeAuditAppendFailure, "audit layer")
	l2 := gateerr.Wrap(l1, gateerr.CodeApprovalTimeout, "approval layer")
	l3 := gateerr.Wrap(l2, gateerr.CodeGateInternalFailure, "gate layer")

	assert.Equal(t, gateerr.CodeAuditAppendFailure, gateerr.CodeOf(l3))
	assert.ErrorIs(t, l3, root)
}

// ---------------------------------------------------------------------------
// Error message content
// ---------------------------------------------------------------------------

func TestWrapMessageIncludesContext(t *testing.T) {
	root := stderrors.New("EOF")
	err := gateerr.Wrap(root, gateerr.CodeAuditAppendFailure, "reading rows")

	msg := err.Error()
	assert.Contains(t, msg, "reading rows")
	assert.Contains(t, msg, "EOF")
}

func TestNewMessageContent(t *testing.T) {
	err := gateerr.New(gateerr.CodeGateInternalFailure, "max iterations reached")
	assert.Contains(t, err.Error(), "max iterations reached")
}
