package relayserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/deploy"
	"github.com/floatify/floatify/go/eip712"
	"github.com/floatify/floatify/go/extensions/permitsponsor"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/relayserver"
	evmsigner "github.com/floatify/floatify/go/signers/evm"
	"github.com/floatify/floatify/go/swapper"
)

const (
	adminKey = "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	aliceKey = "0x6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1"
)

var (
	admin       = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	relayer     = common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
	liquidation = common.HexToAddress("0xE11BA2b4D45Eaed5996Cd0823791E0C93114882d")
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	d     *deploy.Deployment
	alice *evmsigner.Signer
}

// newFixture bootstraps a deployment where alice has a forwarder and 100 DAI
// of forwarded yield.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := ledger.NewManualClock(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC))
	opts := deploy.DefaultOptions(admin)
	opts.Relayers = []common.Address{relayer}
	d, err := deploy.Bootstrap(ctx, ledger.New(ledger.WithClock(clock)), opts)
	require.NoError(t, err)
	alice, err := evmsigner.NewSignerFromPrivateKey(aliceKey)
	require.NoError(t, err)

	fw, err := d.CreateForwarder(ctx, alice.Address())
	require.NoError(t, err)
	require.NoError(t, d.Mint(ctx, d.DAI, fw.Address(), deploy.Ether(100)))
	_, err = d.Ledger.Execute(ctx, ledger.Message{From: admin, To: fw.Address()}, func(f *ledger.Frame) error {
		_, err := fw.MintAndForwardYield(f)
		return err
	})
	require.NoError(t, err)
	return &fixture{d: d, alice: alice}
}

func (fx *fixture) server(t *testing.T, opts ...relayserver.Option) http.Handler {
	t.Helper()
	s, err := relayserver.New(fx.d, relayer, opts...)
	require.NoError(t, err)
	return s.Handler()
}

func do(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (fx *fixture) permitInfo(t *testing.T) *permitsponsor.Info {
	t.Helper()
	p := eip712.Permit{
		Holder:  fx.alice.Address(),
		Spender: fx.d.Swapper.Address(),
		Nonce:   fx.d.Chai.Nonces(fx.alice.Address()),
		Expiry:  new(big.Int),
		Allowed: true,
	}
	sig, err := fx.alice.SignPermit(context.Background(), fx.d.Chai.Domain(fx.d.Ledger.ChainID()), p)
	require.NoError(t, err)
	return permitsponsor.NewInfo(fx.d.Chai.Address(), p, sig)
}

func (fx *fixture) relayBody(t *testing.T, signer *evmsigner.Signer, data []byte, nonce *big.Int) map[string]interface{} {
	t.Helper()
	req := eip712.RelayRequest{
		From:  fx.alice.Address(),
		To:    fx.d.Swapper.Address(),
		Data:  data,
		Nonce: nonce,
	}
	sig, err := signer.SignRelayRequest(context.Background(), fx.d.Hub.Domain(fx.d.Ledger.ChainID()), req)
	require.NoError(t, err)
	return map[string]interface{}{
		"request": map[string]interface{}{
			"from":  req.From.Hex(),
			"to":    req.To.Hex(),
			"data":  hexutil.Encode(data),
			"nonce": nonce.String(),
		},
		"signature": hexutil.Encode(sig),
	}
}

func withdrawAll(t *testing.T) []byte {
	t.Helper()
	data, err := swapper.PackWithdrawChaiAsDai(liquidation, floatify.MaxUint256())
	require.NoError(t, err)
	return data
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)
	w := do(fx.server(t), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1337", body["chainId"])
}

func TestUserLookup(t *testing.T) {
	fx := newFixture(t)
	h := fx.server(t)

	w := do(h, http.MethodGet, "/v1/users/"+fx.alice.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode[relayserver.UserResponse](t, w)
	assert.True(t, user.Valid)
	assert.Equal(t, fx.d.Factory.GetForwarder(fx.alice.Address()).Hex(), user.Forwarder)

	w = do(h, http.MethodGet, "/v1/users/"+liquidation.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	user = decode[relayserver.UserResponse](t, w)
	assert.False(t, user.Valid)
	assert.Empty(t, user.Forwarder)

	w = do(h, http.MethodGet, "/v1/users/not-an-address", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_address", decode[relayserver.ErrorResponse](t, w).Code)
}

func TestRecipientBalance(t *testing.T) {
	fx := newFixture(t)
	w := do(fx.server(t), http.MethodGet, "/v1/recipients/"+fx.d.Swapper.Address().Hex()+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, deploy.Ether(1).String(), body["balance"])
	assert.Equal(t, "1", body["formatted"])
}

func TestPermitThenRelay(t *testing.T) {
	fx := newFixture(t)
	h := fx.server(t)

	w := do(h, http.MethodPost, "/v1/permits", fx.permitInfo(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[relayserver.PermitResponse](t, w).TxHash)
	assert.Equal(t, 1, fx.d.Chai.Allowance(fx.alice.Address(), fx.d.Swapper.Address()).Sign())

	body := fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0))
	w = do(h, http.MethodPost, "/v1/relay", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[relayserver.RelayResponse](t, w)
	assert.True(t, first.Success, first.Error)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, deploy.Ether(100).String(), fx.d.DAI.BalanceOf(liquidation).String())
	assert.Equal(t, first.Charge, fx.d.Ledger.NativeBalance(relayer).String())

	// A retried body replays the first outcome.
	w = do(h, http.MethodPost, "/v1/relay", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replay"))
	assert.Equal(t, first, decode[relayserver.RelayResponse](t, w))
	assert.Equal(t, first.Charge, fx.d.Ledger.NativeBalance(relayer).String())

	w = do(h, http.MethodGet, "/v1/relay/nonce/"+fx.alice.Address().Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", decode[map[string]string](t, w)["nonce"])
}

func TestRelayedCallFailureIsReported(t *testing.T) {
	fx := newFixture(t)
	h := fx.server(t)
	w := do(h, http.MethodPost, "/v1/permits", fx.permitInfo(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A Swapper base asset that no longer matches the wrapper: the hub
	// accepts and charges, the withdrawal reverts.
	_, err := fx.d.Ledger.Execute(context.Background(), ledger.Message{From: admin, To: fx.d.Swapper.Address()}, func(f *ledger.Frame) error {
		return fx.d.Swapper.UpdateBaseAssetAddress(f, fx.d.SAI.Address())
	})
	require.NoError(t, err)

	w = do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[relayserver.RelayResponse](t, w)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, swapper.ErrBaseMismatch.Code)
	assert.Zero(t, fx.d.DAI.BalanceOf(liquidation).Sign())
	assert.Equal(t, res.Charge, fx.d.Ledger.NativeBalance(relayer).String())
}

func TestRelayRefusesUnpermittedCall(t *testing.T) {
	fx := newFixture(t)
	h := fx.server(t)
	deposit := fx.d.Hub.BalanceOf(fx.d.Swapper.Address())

	w := do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0)))
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, swapper.ErrNoAllowance.Code, decode[relayserver.ErrorResponse](t, w).Code)
	assert.Equal(t, deposit.String(), fx.d.Hub.BalanceOf(fx.d.Swapper.Address()).String())
}

func TestUntrustedRelayerIsRefused(t *testing.T) {
	fx := newFixture(t)
	s, err := relayserver.New(fx.d, liquidation)
	require.NoError(t, err)
	h := s.Handler()
	w := do(h, http.MethodPost, "/v1/permits", fx.permitInfo(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	deposit := fx.d.Hub.BalanceOf(fx.d.Swapper.Address())

	w = do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0)))
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, swapper.ErrUntrustedRelayer.Code, decode[relayserver.ErrorResponse](t, w).Code)
	assert.Equal(t, deposit.String(), fx.d.Hub.BalanceOf(fx.d.Swapper.Address()).String())
	assert.Zero(t, fx.d.Ledger.NativeBalance(liquidation).Sign())
	assert.Zero(t, fx.d.DAI.BalanceOf(liquidation).Sign())
}

func TestCreateForwarder(t *testing.T) {
	const apiKey = "s3cret"
	fx := newFixture(t)
	h := fx.server(t, relayserver.WithAdminAPIKey(apiKey))
	user := common.HexToAddress("0xd03ea8624C8C5987235048901fB614fDcA89b117")
	body := map[string]string{"user": user.Hex()}

	post := func(key string, body interface{}) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/v1/forwarders", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	tests := []struct {
		name string
		key  string
		body interface{}
		code int
		want string
	}{
		{"missing key", "", body, http.StatusForbidden, "unauthorized"},
		{"wrong key", "nope", body, http.StatusForbidden, "unauthorized"},
		{"bad address", apiKey, map[string]string{"user": "0x1234"}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(tt.key, tt.body)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Equal(t, tt.want, decode[relayserver.ErrorResponse](t, w).Code)
		})
	}
	assert.Equal(t, common.Address{}, fx.d.Factory.GetForwarder(user))

	w := post(apiKey, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[relayserver.ForwarderResponse](t, w)
	assert.Equal(t, user.Hex(), created.User)
	assert.True(t, created.Valid)
	assert.Equal(t, fx.d.Factory.GetForwarder(user).Hex(), created.Forwarder)
	assert.True(t, fx.d.Swapper.IsValidUser(user))

	w = do(h, http.MethodGet, "/v1/users/"+user.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Forwarder, decode[relayserver.UserResponse](t, w).Forwarder)

	w = post(apiKey, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "already_registered", decode[relayserver.ErrorResponse](t, w).Code)
}

func TestAdminRoutesDisabledWithoutKey(t *testing.T) {
	fx := newFixture(t)
	body := map[string]string{"user": "0xd03ea8624C8C5987235048901fB614fDcA89b117"}
	w := do(fx.server(t), http.MethodPost, "/v1/forwarders", body)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "unauthorized", decode[relayserver.ErrorResponse](t, w).Code)
	assert.Len(t, fx.d.Factory.GetUsers(), 1)
}

func TestRelayErrors(t *testing.T) {
	fx := newFixture(t)
	h := fx.server(t)
	adminSigner, err := evmsigner.NewSignerFromPrivateKey(adminKey)
	require.NoError(t, err)

	t.Run("schema violation", func(t *testing.T) {
		body := fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0))
		delete(body, "signature")
		w := do(h, http.MethodPost, "/v1/relay", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode[relayserver.ErrorResponse](t, w)
		assert.Equal(t, "invalid_request", resp.Code)
		assert.NotEmpty(t, resp.Details["violations"])
	})

	t.Run("malformed json", func(t *testing.T) {
		w := do(h, http.MethodPost, "/v1/relay", []byte("{"))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong signer", func(t *testing.T) {
		w := do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, adminSigner, withdrawAll(t), big.NewInt(0)))
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "relay_invalid_signature", decode[relayserver.ErrorResponse](t, w).Code)
	})

	t.Run("stale nonce", func(t *testing.T) {
		w := do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(7)))
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "relay_bad_nonce", decode[relayserver.ErrorResponse](t, w).Code)
	})

	t.Run("unknown selector", func(t *testing.T) {
		w := do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, []byte{1, 2, 3, 4}, big.NewInt(0)))
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, swapper.ErrUnknownSelector.Code, decode[relayserver.ErrorResponse](t, w).Code)
	})

	assert.Equal(t, "0", fx.d.Hub.Nonce(fx.alice.Address()).String(), "rejected requests leave the nonce")
}

func TestPermitErrors(t *testing.T) {
	fx := newFixture(t)
	h := fx.server(t)

	info := fx.permitInfo(t)
	info.Wrapper = fx.d.DAI.Address().Hex()
	w := do(h, http.MethodPost, "/v1/permits", info)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_wrapper", decode[relayserver.ErrorResponse](t, w).Code)

	info = fx.permitInfo(t)
	info.Signature = "0x1234"
	w = do(h, http.MethodPost, "/v1/permits", info)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode[relayserver.ErrorResponse](t, w).Code)

	// A permit signed for another spender does not verify.
	info = fx.permitInfo(t)
	info.Spender = liquidation.Hex()
	w = do(h, http.MethodPost, "/v1/permits", info)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid_permit", decode[relayserver.ErrorResponse](t, w).Code)
}

func TestRelayHooks(t *testing.T) {
	fx := newFixture(t)

	t.Run("before hook aborts", func(t *testing.T) {
		h := fx.server(t, relayserver.WithBeforeRelayHook(func(rc relayserver.RelayContext) (*relayserver.BeforeHookResult, error) {
			return &relayserver.BeforeHookResult{Abort: true, Reason: "paused"}, nil
		}))
		w := do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0)))
		require.Equal(t, http.StatusForbidden, w.Code)
		resp := decode[relayserver.ErrorResponse](t, w)
		assert.Equal(t, "relay_aborted", resp.Code)
		assert.Contains(t, resp.Message, "paused")
	})

	t.Run("failure hook recovers", func(t *testing.T) {
		var failed error
		h := fx.server(t, relayserver.WithOnRelayFailureHook(func(fc relayserver.RelayFailureContext) (*relayserver.FailureHookResult, error) {
			failed = fc.Error
			return &relayserver.FailureHookResult{Recovered: true, Result: relayserver.RelayResponse{ID: fc.ID, Error: "queued"}}, nil
		}))
		w := do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(3)))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "queued", decode[relayserver.RelayResponse](t, w).Error)
		assert.Contains(t, failed.Error(), "relay_bad_nonce")
	})

	t.Run("after hook observes result", func(t *testing.T) {
		var seen []relayserver.RelayResultContext
		h := fx.server(t, relayserver.WithAfterRelayHook(func(rrc relayserver.RelayResultContext) error {
			seen = append(seen, rrc)
			return nil
		}))
		w := do(h, http.MethodPost, "/v1/permits", fx.permitInfo(t))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w = do(h, http.MethodPost, "/v1/relay", fx.relayBody(t, fx.alice, withdrawAll(t), big.NewInt(0)))
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, seen, 1)
		assert.Equal(t, fx.alice.Address(), seen[0].Request.From)
		assert.Equal(t, decode[relayserver.RelayResponse](t, w).ID, seen[0].Result.ID)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{floatify.ErrNotOwner, http.StatusForbidden},
		{floatify.ErrAlreadyInitialized, http.StatusConflict},
		{swapper.ErrNothingToRedeem, http.StatusPaymentRequired},
		{floatify.ErrZeroAddress, http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relayserver.StatusFor(tt.err), tt.err.Error())
	}
}
