package eip712

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned for signatures that are not 65 bytes or do
// not recover to a public key.
var ErrInvalidSignature = errors.New("invalid signature")

// SplitSignature splits a 65-byte (r, s, v) signature. v is normalized to 27
// or 28.
func SplitSignature(sig []byte) (v uint8, r, s [32]byte, err error) {
	if len(sig) != crypto.SignatureLength {
		return 0, r, s, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// JoinSignature is the inverse of SplitSignature.
func JoinSignature(v uint8, r, s [32]byte) []byte {
	sig := make([]byte, 0, crypto.SignatureLength)
	sig = append(sig, r[:]...)
	sig = append(sig, s[:]...)
	return append(sig, v)
}

// RecoverSigner returns the address whose key produced sig over digest.
func RecoverSigner(digest []byte, v uint8, r, s [32]byte) (common.Address, error) {
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}
	pubKey, err := crypto.SigToPub(digest, JoinSignature(v, r, s))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
