package swapper

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Relayable methods
const (
	MethodWithdrawChaiAsDai = "withdrawChaiAsDai"
	MethodTransferChai      = "transferChai"
)

const relayABI = `[
	{"type":"function","name":"withdrawChaiAsDai","stateMutability":"nonpayable","inputs":[{"name":"destination","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"transferChai","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var parsedABI = mustParseABI(relayABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ABI returns the ABI of the relayable Swapper methods.
func ABI() abi.ABI { return parsedABI }

// PackWithdrawChaiAsDai encodes a relayed withdrawChaiAsDai call.
func PackWithdrawChaiAsDai(destination common.Address, amount *big.Int) ([]byte, error) {
	return parsedABI.Pack(MethodWithdrawChaiAsDai, destination, amount)
}

// PackTransferChai encodes a relayed transferChai call.
func PackTransferChai(recipient common.Address, amount *big.Int) ([]byte, error) {
	return parsedABI.Pack(MethodTransferChai, recipient, amount)
}

// Call is a decoded relayed call.
type Call struct {
	Method string
	Target common.Address
	Amount *big.Int
}

// DecodeCall decodes relayed calldata into one of the relayable methods.
func DecodeCall(data []byte) (*Call, error) {
	if len(data) < 4 {
		return nil, ErrUnknownSelector.Withf("calldata too short")
	}
	method, err := parsedABI.MethodById(data[:4])
	if err != nil {
		return nil, ErrUnknownSelector.Withf("%x", data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, ErrBadCalldata.Withf("%s: %v", method.Name, err)
	}
	if len(args) != 2 {
		return nil, ErrBadCalldata.Withf("%s: want 2 arguments, got %d", method.Name, len(args))
	}
	target, ok := args[0].(common.Address)
	if !ok {
		return nil, ErrBadCalldata.Withf("%s: argument 0 is %T", method.Name, args[0])
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return nil, ErrBadCalldata.Withf("%s: argument 1 is %T", method.Name, args[1])
	}
	return &Call{Method: method.Name, Target: target, Amount: amount}, nil
}
