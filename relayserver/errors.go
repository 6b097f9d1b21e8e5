package relayserver

import (
	"errors"
	"net/http"

	floatify "github.com/floatify/floatify/go"
)

var (
	ErrInvalidRequest = floatify.NewError(floatify.KindInvalidArgument, "invalid_request", "request body is invalid")
	ErrInvalidAddress = floatify.NewError(floatify.KindInvalidArgument, "invalid_address", "path address is invalid")
	ErrUnknownWrapper = floatify.NewError(floatify.KindInvalidArgument, "unknown_wrapper", "permit is not for the deployment's yield wrapper")
	ErrRelayAborted   = floatify.NewError(floatify.KindAuthorization, "relay_aborted", "relay aborted")
	ErrUnauthorized   = floatify.NewError(floatify.KindAuthorization, "unauthorized", "admin api key is missing or wrong")
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusFor maps an error to its HTTP status by kind.
func StatusFor(err error) int {
	switch floatify.KindOf(err) {
	case floatify.KindAuthorization:
		return http.StatusForbidden
	case floatify.KindStaleAuthorization, floatify.KindSlippage, floatify.KindReinitialization:
		return http.StatusConflict
	case floatify.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case floatify.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toErrorResponse(err error) ErrorResponse {
	var fe *floatify.Error
	if errors.As(err, &fe) {
		return ErrorResponse{Code: fe.Code, Message: fe.Message, Details: fe.Details}
	}
	return ErrorResponse{Code: "internal_error", Message: err.Error()}
}
