// Package eip712 hashes the typed messages users sign off-band: wrapper
// permits and relay requests. It also converts between 65-byte signatures and
// their (v, r, s) form and recovers signers.
package eip712

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataDomain represents an EIP-712 domain
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Typed is a message that can be signed as EIP-712 typed data. Every message
// here is flat, so its type set is the domain plus its own struct.
type Typed interface {
	PrimaryType() string
	Fields() []apitypes.Type
	Message() apitypes.TypedDataMessage
}

// TypedData assembles the go-ethereum typed data for msg under domain.
func TypedData(domain TypedDataDomain, msg Typed) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":    domainType,
			msg.PrimaryType(): msg.Fields(),
		},
		PrimaryType: msg.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: msg.Message(),
	}
}

// Hash returns keccak256("\x19\x01" || domainSeparator || structHash(msg)).
func Hash(domain TypedDataDomain, msg Typed) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(TypedData(domain, msg))
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", msg.PrimaryType(), err)
	}
	return digest, nil
}

// Permit is the DAI-style approval a holder signs for a spender. An Expiry
// of zero never expires; Allowed false revokes.
type Permit struct {
	Holder  common.Address
	Spender common.Address
	Nonce   *big.Int
	Expiry  *big.Int
	Allowed bool
}

func (Permit) PrimaryType() string { return "Permit" }

func (Permit) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "holder", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "expiry", Type: "uint256"},
		{Name: "allowed", Type: "bool"},
	}
}

func (p Permit) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"holder":  p.Holder.Hex(),
		"spender": p.Spender.Hex(),
		"nonce":   bigOrZero(p.Nonce),
		"expiry":  bigOrZero(p.Expiry),
		"allowed": p.Allowed,
	}
}

// HashPermit returns the digest a holder signs for p under domain.
func HashPermit(domain TypedDataDomain, p Permit) ([]byte, error) {
	return Hash(domain, p)
}

// RelayRequest is a call the From account asks a relayer to submit on its
// behalf. Nonce is From's relay nonce at the hub.
type RelayRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Nonce *big.Int
}

func (RelayRequest) PrimaryType() string { return "RelayRequest" }

func (RelayRequest) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "data", Type: "bytes"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (r RelayRequest) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"from":  r.From.Hex(),
		"to":    r.To.Hex(),
		"data":  hexutil.Encode(r.Data),
		"nonce": bigOrZero(r.Nonce),
	}
}

// HashRelayRequest returns the digest From signs for r under domain.
func HashRelayRequest(domain TypedDataDomain, r RelayRequest) ([]byte, error) {
	return Hash(domain, r)
}

func bigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
