package redemption

import (
	floatify "github.com/floatify/floatify/go"
)

var (
	ErrNothingToConvert = floatify.NewError(floatify.KindInsufficientBalance, "nothing_to_convert", "Settlement: nothing to convert")
	ErrSettlementAsset  = floatify.NewError(floatify.KindInvalidArgument, "settlement_asset", "Settlement: token is the settlement asset")
)
