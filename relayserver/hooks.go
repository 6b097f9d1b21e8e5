package relayserver

import (
	"context"
	"time"

	"github.com/floatify/floatify/go/eip712"
)

// RelayContext is passed to relay hooks.
type RelayContext struct {
	Ctx             context.Context
	ID              string
	Request         eip712.RelayRequest
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// RelayResultContext carries a completed submission. Success false means the
// hub accepted and charged the request but the relayed call reverted.
type RelayResultContext struct {
	RelayContext
	Result   RelayResponse
	Duration time.Duration
}

// RelayFailureContext carries a submission the hub rejected.
type RelayFailureContext struct {
	RelayContext
	Error    error
	Duration time.Duration
}

// BeforeHookResult aborts the submission with Reason when Abort is set.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// FailureHookResult replaces the error with Result when Recovered is set.
type FailureHookResult struct {
	Recovered bool
	Result    RelayResponse
}

// BeforeRelayHook runs before a request reaches the hub. An error or an abort
// result stops the submission.
type BeforeRelayHook func(RelayContext) (*BeforeHookResult, error)

// AfterRelayHook runs after the hub accepted a request. Errors are logged
// and do not change the response.
type AfterRelayHook func(RelayResultContext) error

// OnRelayFailureHook runs when the hub rejected a request.
type OnRelayFailureHook func(RelayFailureContext) (*FailureHookResult, error)
