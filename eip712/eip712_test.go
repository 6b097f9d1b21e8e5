package eip712

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func testDomain() TypedDataDomain {
	return TypedDataDomain{
		Name:              "Chai",
		Version:           "1",
		ChainID:           big.NewInt(1),
		VerifyingContract: "0x06012c8cf97BEaD5deAe237070F9587f8E7A266d",
	}
}

func TestHashPermitIsDeterministic(t *testing.T) {
	p := Permit{
		Holder:  common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"),
		Spender: common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"),
		Nonce:   big.NewInt(0),
		Expiry:  big.NewInt(0),
		Allowed: true,
	}

	h1, err := HashPermit(testDomain(), p)
	if err != nil {
		t.Fatalf("HashPermit failed: %v", err)
	}
	h2, err := HashPermit(testDomain(), p)
	if err != nil {
		t.Fatalf("HashPermit failed: %v", err)
	}
	if len(h1) != 32 || !bytes.Equal(h1, h2) {
		t.Fatalf("expected stable 32-byte digest, got %x and %x", h1, h2)
	}

	tests := []struct {
		name   string
		mutate func(p Permit, d TypedDataDomain) (Permit, TypedDataDomain)
	}{
		{"nonce", func(p Permit, d TypedDataDomain) (Permit, TypedDataDomain) {
			p.Nonce = big.NewInt(1)
			return p, d
		}},
		{"allowed", func(p Permit, d TypedDataDomain) (Permit, TypedDataDomain) {
			p.Allowed = false
			return p, d
		}},
		{"chain", func(p Permit, d TypedDataDomain) (Permit, TypedDataDomain) {
			d.ChainID = big.NewInt(1337)
			return p, d
		}},
		{"verifying contract", func(p Permit, d TypedDataDomain) (Permit, TypedDataDomain) {
			d.VerifyingContract = "0x0000000000000000000000000000000000000001"
			return p, d
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp, md := tt.mutate(p, testDomain())
			h, err := HashPermit(md, mp)
			if err != nil {
				t.Fatalf("HashPermit failed: %v", err)
			}
			if bytes.Equal(h, h1) {
				t.Errorf("expected digest to change when %s changes", tt.name)
			}
		})
	}
}

func TestHashRelayRequestCoversData(t *testing.T) {
	req := RelayRequest{
		From:  common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"),
		To:    common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"),
		Data:  []byte{0xde, 0xad},
		Nonce: big.NewInt(3),
	}
	h1, err := HashRelayRequest(testDomain(), req)
	if err != nil {
		t.Fatalf("HashRelayRequest failed: %v", err)
	}
	req.Data = []byte{0xbe, 0xef}
	h2, err := HashRelayRequest(testDomain(), req)
	if err != nil {
		t.Fatalf("HashRelayRequest failed: %v", err)
	}
	if bytes.Equal(h1, h2) {
		t.Fatal("expected calldata to be part of the digest")
	}
}

func TestTypedDataCarriesMessageTypes(t *testing.T) {
	tests := []struct {
		name    string
		msg     Typed
		primary string
		fields  int
	}{
		{"permit", Permit{Nonce: big.NewInt(0)}, "Permit", 5},
		{"relay request", RelayRequest{Data: []byte{0x01}}, "RelayRequest", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := TypedData(testDomain(), tt.msg)
			if td.PrimaryType != tt.primary {
				t.Fatalf("expected primary type %s, got %s", tt.primary, td.PrimaryType)
			}
			if len(td.Types) != 2 || len(td.Types["EIP712Domain"]) != 4 {
				t.Fatalf("expected domain plus %s types, got %v", tt.primary, td.Types)
			}
			if got := len(td.Types[tt.primary]); got != tt.fields {
				t.Errorf("expected %d %s fields, got %d", tt.fields, tt.primary, got)
			}
		})
	}
}

func TestHashPrefixesDomainSeparator(t *testing.T) {
	p := Permit{Holder: common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"), Allowed: true}
	td := TypedData(testDomain(), p)

	structHash, err := td.HashStruct("Permit", td.Message)
	if err != nil {
		t.Fatal(err)
	}
	separator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		t.Fatal(err)
	}
	want := crypto.Keccak256([]byte{0x19, 0x01}, separator, structHash)

	got, err := Hash(testDomain(), p)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %x, got %x", want, got)
	}
}

func TestHashRejectsMalformedMessage(t *testing.T) {
	if _, err := Hash(testDomain(), badMessage{}); err == nil {
		t.Fatal("expected an error for a message missing its fields")
	}
}

type badMessage struct{}

func (badMessage) PrimaryType() string { return "Bad" }
func (badMessage) Fields() []apitypes.Type {
	return []apitypes.Type{{Name: "amount", Type: "uint256"}}
}
func (badMessage) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{"amount": "not a number"}
}

func TestRecoverSigner(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	if err != nil {
		t.Fatal(err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)
	digest := crypto.Keccak256([]byte("permit"))

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	v, r, s, err := SplitSignature(sig)
	if err != nil {
		t.Fatal(err)
	}
	if v != 27 && v != 28 {
		t.Fatalf("expected normalized v, got %d", v)
	}

	got, err := RecoverSigner(digest, v, r, s)
	if err != nil {
		t.Fatalf("RecoverSigner failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want.Hex(), got.Hex())
	}

	other, err := RecoverSigner(crypto.Keccak256([]byte("other")), v, r, s)
	if err == nil && other == want {
		t.Error("expected a different digest not to recover the signer")
	}

	if _, err := RecoverSigner(digest, 30, r, s); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for bad v, got %v", err)
	}
}

func TestSplitSignatureLength(t *testing.T) {
	if _, _, _, err := SplitSignature(make([]byte, 64)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}
