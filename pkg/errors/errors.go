// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeProvRefUnresolved             Code = "prov.ref_unresolved"
	CodeProvHighRiskAfterUntrusted    Code = "prov.high_risk_after_untrusted"
	CodeProvHighRiskStaleSource       Code = "prov.high_risk_stale_source"
	CodeProvHighRiskNonUserSource     Code = "prov.high_risk_non_user_source"
	CodeProvSessionNotFound           Code = "prov.session.not_found"
	CodeProvNodeNotFound              Code = "prov.node.not_found"

	CodePathOutsideAllowedRoots Code = "path.outside_allowed_roots"
	CodePathBlocked             Code = "path.blocked"
	CodePathHomeSensitive       Code = "path.home_sensitive"
	CodePathResolveFailure      Code = "path.resolve.failure"

	CodeSecretsDetected     Code = "secrets.detected"
	CodeSecretsScanFailure  Code = "secrets.scan.failure"
	CodeSecretsRuleInvalid  Code = "secrets.rule.invalid"

	CodeNetworkNotAllowlisted Code = "network.not_allowlisted"

	CodeExecShellWrapped         Code = "exec.shell_wrapped"
	CodeCommandDestructiveNoTarget Code = "command.destructive.no_target"

	CodeToolParamsUnrecognized Code = "tool.params_unrecognized"

	CodePolicyLoadFailure     Code = "policy.load.failure"
	CodePolicyValidateInvalid Code = "policy.validate.invalid_value"

	CodeApprovalTimeout    Code = "approval.timeout"
	CodeApprovalUnavailable Code = "approval.unavailable"
	CodeApprovalDenied      Code = "approval.denied"
	CodeApprovalMalformed   Code = "approval.response.malformed"

	CodeAuditAppendFailure Code = "audit.append.failure"
	CodeAuditOpenFailure   Code = "audit.open.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeGateInternalFailure Code = "gate.internal.failure"
	CodeGateFailClosed      Code = "gate.fail_closed"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldRuleID(value string) Attr {
	return Field("rule_id", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(string(code)).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(string(code)).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(string(code)).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(string(code)).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeGateInternalFailure
	}

	return oops.Code(string(code)).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsDenied(err error) bool {
	r := reason(CodeOf(err))
	return r == "denied" || r == "forbidden"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// HTTPStatus is kept for parity with the ambient error package shape; the
// gate has no HTTP surface of its own but diagnostics tooling may embed one.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsDenied(err):
		return http.StatusForbidden
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(string(CodeGateInternalFailure)).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
