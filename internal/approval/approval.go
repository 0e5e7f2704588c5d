// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package approval forwards "confirm" decisions to an out-of-process
// approval listener over a Unix domain socket. The protocol is
// deliberately minimal — one newline-terminated JSON request, one
// newline-terminated JSON response — rather than a plugin RPC framework:
// the bridge performs exactly one bounded round-trip per confirm and has
// no need for the handshake, streaming, or multiplexing machinery that a
// general plugin transport provides.
package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"time"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// DefaultTimeout is the wall-clock budget for one approval round-trip.
const DefaultTimeout = 30 * time.Second

const (
	envSocketPath = "OPENCLAW_APPROVAL_SOCKET"
	envToken      = "OPENCLAW_APPROVAL_TOKEN"
)

// Result is the listener's verdict on a confirm request.
type Result string

const (
	ResultAllowOnce   Result = "allow-once"
	ResultAllowAlways Result = "allow-always"
	ResultDeny        Result = "deny"
)

// Request is the tagged document sent to the approval listener.
type Request struct {
	Type     string         `json:"type"`
	RuleID   provtypes.RuleID `json:"rule_id"`
	ToolName string         `json:"tool_name,omitempty"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type wireResponse struct {
	Result string `json:"result"`
}

// Descriptor names where the approval listener is reachable and how to
// authenticate to it. It is sourced from the environment, never from the
// policy file, because it names a process-local secret rather than a
// declarative security rule.
type Descriptor struct {
	SocketPath string
	Token      string
}

// DescriptorFromEnv reads the approval socket descriptor from the
// environment. The second return value is false if no socket path is
// configured, in which case the caller has no bridge to consult and must
// convert confirm to deny itself.
func DescriptorFromEnv() (Descriptor, bool) {
	path := os.Getenv(envSocketPath)
	if path == "" {
		return Descriptor{}, false
	}
	return Descriptor{SocketPath: path, Token: os.Getenv(envToken)}, true
}

// Bridge dials the approval listener for each Confirm call. It holds no
// persistent connection — each request is a fresh dial, write, read, close
// cycle, which keeps the bridge simple and avoids reasoning about a stale
// connection surviving a listener restart.
type Bridge struct {
	descriptor Descriptor
	timeout    time.Duration
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New creates a Bridge bound to descriptor with the default timeout.
func New(descriptor Descriptor) *Bridge {
	d := net.Dialer{}
	return &Bridge{
		descriptor: descriptor,
		timeout:    DefaultTimeout,
		dial:       d.DialContext,
	}
}

// WithTimeout overrides the default round-trip timeout; used by tests.
func (b *Bridge) WithTimeout(d time.Duration) *Bridge {
	b.timeout = d
	return b
}

// Confirm sends req to the listener and returns its verdict. Any network
// error, timeout, or malformed reply is fail-closed: it returns
// ResultDeny alongside the error, and callers must treat a non-nil error
// as an unconditional deny regardless of the returned Result value.
func (b *Bridge) Confirm(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	conn, err := b.dial(ctx, "unix", b.descriptor.SocketPath)
	if err != nil {
		return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalUnavailable, "dialing approval socket")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req.Type = "policy.request"
	payload, err := json.Marshal(req)
	if err != nil {
		return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalMalformed, "encoding approval request")
	}
	payload = append(payload, '\n')

	if b.descriptor.Token != "" {
		authLine := []byte(`{"auth":"` + b.descriptor.Token + "\"}\n")
		if _, err := conn.Write(authLine); err != nil {
			return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalUnavailable, "writing approval auth")
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalUnavailable, "writing approval request")
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		if isTimeout(err) {
			return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalTimeout, "waiting for approval response")
		}
		return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalUnavailable, "reading approval response")
	}

	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return ResultDeny, gateerr.Wrap(err, gateerr.CodeApprovalMalformed, "parsing approval response")
	}

	switch Result(resp.Result) {
	case ResultAllowOnce, ResultAllowAlways, ResultDeny:
		return Result(resp.Result), nil
	default:
		return ResultDeny, gateerr.Errorf(gateerr.CodeApprovalMalformed, "unrecognized approval result: %q", resp.Result)
	}
}

func isTimeout(err error) bool {
	type timeoutError interface{ Timeout() bool }
	te, ok := err.(timeoutError)
	return ok && te.Timeout()
}
