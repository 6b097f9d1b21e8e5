package factory

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrAlreadyRegistered = floatify.NewError(floatify.KindInvalidArgument, "already_registered", "ForwarderFactory: user already has a forwarder")
	ErrUserIndex         = floatify.NewError(floatify.KindInvalidArgument, "user_index", "ForwarderFactory: user index out of range")
)
