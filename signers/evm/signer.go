// Package evm provides an ECDSA key signer for the typed messages users and
// relayers sign: wrapper permits and relay requests.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/floatify/floatify/go/eip712"
)

// Signer holds an ECDSA private key and the address derived from it.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSignerFromPrivateKey creates a signer from a hex-encoded private key.
//
// Args:
//
//	privateKeyHex: Hex-encoded private key (with or without "0x" prefix)
//
// Returns:
//
//	Signer ready to sign permits and relay requests
//	Error if private key is invalid
func NewSignerFromPrivateKey(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return NewSigner(privateKey), nil
}

// NewSigner wraps an existing key.
func NewSigner(privateKey *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the Ethereum address of the signer.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest signs a 32-byte digest and returns the 65-byte (r, s, v)
// signature with v in {27, 28}.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// recovery ID 0/1 → 27/28
	signature[64] += 27
	return signature, nil
}

// SignTypedData signs msg as EIP-712 typed data under domain.
func (s *Signer) SignTypedData(ctx context.Context, domain eip712.TypedDataDomain, msg eip712.Typed) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := eip712.Hash(domain, msg)
	if err != nil {
		return nil, err
	}
	return s.SignDigest(digest)
}

// SignPermit signs a wrapper permit. The signer must be the permit holder.
func (s *Signer) SignPermit(ctx context.Context, domain eip712.TypedDataDomain, permit eip712.Permit) ([]byte, error) {
	if permit.Holder != s.address {
		return nil, fmt.Errorf("permit holder %s is not the signer %s", permit.Holder.Hex(), s.address.Hex())
	}
	return s.SignTypedData(ctx, domain, permit)
}

// SignRelayRequest signs a relay request. The signer must be the request
// sender.
func (s *Signer) SignRelayRequest(ctx context.Context, domain eip712.TypedDataDomain, req eip712.RelayRequest) ([]byte, error) {
	if req.From != s.address {
		return nil, fmt.Errorf("relay request sender %s is not the signer %s", req.From.Hex(), s.address.Hex())
	}
	return s.SignTypedData(ctx, domain, req)
}
