package router

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrNotOperator          = floatify.NewError(floatify.KindAuthorization, "not_operator", "router: caller is not the operator")
	ErrNoRoute              = floatify.NewError(floatify.KindInvalidArgument, "no_route", "router: no rate for pair")
	ErrSamePair             = floatify.NewError(floatify.KindInvalidArgument, "same_pair", "router: source and destination are the same asset")
	ErrSkewRange            = floatify.NewError(floatify.KindInvalidArgument, "skew_range", "router: skew above 10000 bps")
	ErrValueMismatch        = floatify.NewError(floatify.KindInvalidArgument, "value_mismatch", "router: call value does not match amount in")
	ErrInsufficientReserves = floatify.NewError(floatify.KindInsufficientBalance, "insufficient_reserves", "router: reserves too low")
	ErrSlippage             = floatify.NewError(floatify.KindSlippage, "slippage", "router: output below minimum")
)
