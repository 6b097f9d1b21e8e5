package forwarder

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrNotAdmin         = floatify.NewError(floatify.KindAuthorization, "not_admin", "Forwarder: caller is not the floatify address")
	ErrNotOwnerOrAdmin  = floatify.NewError(floatify.KindAuthorization, "not_owner_or_admin", "Forwarder: caller must be owner or floatify")
	ErrNothingToForward = floatify.NewError(floatify.KindInsufficientBalance, "nothing_to_forward", "Forwarder: nothing to forward")
)
