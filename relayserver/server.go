// Package relayserver exposes the relay hub, sponsored permits and
// registry lookups of a deployment over HTTP.
package relayserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/floatify/floatify/go/deploy"
	"github.com/floatify/floatify/go/eip712"
	"github.com/floatify/floatify/go/extensions/permitsponsor"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/relay"
	"github.com/floatify/floatify/go/units"
)

// DefaultIdempotencyTTL is how long relay results are replayed.
const DefaultIdempotencyTTL = 5 * time.Minute

// RelayBody is the POST /v1/relay request body.
type RelayBody struct {
	Request struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Data  string `json:"data"`
		Nonce string `json:"nonce"`
	} `json:"request"`
	Signature string `json:"signature"`
}

// RelayResponse is the outcome of a relay submission.
type RelayResponse struct {
	ID      string `json:"id"`
	TxHash  string `json:"txHash"`
	Success bool   `json:"success"`
	Charge  string `json:"charge"`
	Error   string `json:"error,omitempty"`
}

// PermitResponse is the outcome of a sponsored permit.
type PermitResponse struct {
	TxHash string `json:"txHash"`
}

// ForwarderBody is the POST /v1/forwarders request body.
type ForwarderBody struct {
	User string `json:"user"`
}

// ForwarderResponse describes a newly provisioned forwarder.
type ForwarderResponse struct {
	User      string `json:"user"`
	Forwarder string `json:"forwarder"`
	Valid     bool   `json:"valid"`
}

// UserResponse describes a user's registration.
type UserResponse struct {
	Address   string `json:"address"`
	Valid     bool   `json:"valid"`
	Forwarder string `json:"forwarder,omitempty"`
}

// Server serves the relay API of a deployment.
type Server struct {
	d       *deploy.Deployment
	relayer common.Address
	apiKey  string
	logger  *zap.Logger
	ttl     time.Duration
	cache   *ResultCache
	schemas *schemas
	engine  *gin.Engine

	beforeHooks    []BeforeRelayHook
	afterHooks     []AfterRelayHook
	onFailureHooks []OnRelayFailureHook
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAdminAPIKey enables the admin routes, authenticated by the X-API-Key
// header. Without a key they refuse every request.
func WithAdminAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithIdempotencyTTL sets how long relay results are replayed.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *Server) { s.ttl = ttl }
}

// WithBeforeRelayHook registers a hook run before each submission.
func WithBeforeRelayHook(hook BeforeRelayHook) Option {
	return func(s *Server) { s.beforeHooks = append(s.beforeHooks, hook) }
}

// WithAfterRelayHook registers a hook run after each accepted submission.
func WithAfterRelayHook(hook AfterRelayHook) Option {
	return func(s *Server) { s.afterHooks = append(s.afterHooks, hook) }
}

// WithOnRelayFailureHook registers a hook run after each rejected submission.
func WithOnRelayFailureHook(hook OnRelayFailureHook) Option {
	return func(s *Server) { s.onFailureHooks = append(s.onFailureHooks, hook) }
}

// New creates a server submitting transactions from relayer.
func New(d *deploy.Deployment, relayer common.Address, opts ...Option) (*Server, error) {
	s := &Server{
		d:       d,
		relayer: relayer,
		logger:  zap.NewNop(),
		ttl:     DefaultIdempotencyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	if s.schemas, err = compileSchemas(); err != nil {
		return nil, err
	}
	s.cache = NewResultCache(s.ttl)

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/healthz", s.handleHealth)
	v1 := s.engine.Group("/v1")
	v1.POST("/relay", s.handleRelay)
	v1.POST("/permits", s.handlePermit)
	v1.GET("/relay/nonce/:address", s.handleNonce)
	v1.GET("/recipients/:address/balance", s.handleRecipientBalance)
	v1.GET("/users/:address", s.handleUser)
	v1.POST("/forwarders", s.requireAdmin(), s.handleCreateForwarder)
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// requireAdmin rejects requests whose X-API-Key does not match the admin key.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.fail(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"chainId": s.d.Ledger.ChainID().String(),
		"block":   s.d.Ledger.BlockNumber(),
	})
}

func (s *Server) handleRelay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	violations, err := validate(s.schemas.relay, body)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	if violations != nil {
		s.fail(c, ErrInvalidRequest.WithDetails(map[string]interface{}{"violations": violations}))
		return
	}
	req, sig, err := parseRelayBody(body)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	key := CacheKey(body)
	for {
		status, cached, done := s.cache.CheckAndMark(key)
		switch status {
		case StatusCached:
			c.Header("Idempotent-Replay", "true")
			c.JSON(http.StatusOK, cached)
			return
		case StatusInFlight:
			res, err := s.cache.WaitForResult(ctx, key, done)
			if err != nil {
				s.fail(c, err)
				return
			}
			if res != nil {
				c.Header("Idempotent-Replay", "true")
				c.JSON(http.StatusOK, res)
				return
			}
			continue
		}

		res, err := s.relay(ctx, req, sig)
		if err != nil {
			s.cache.Fail(key, done)
			s.fail(c, err)
			return
		}
		s.cache.Complete(key, res, done)
		c.JSON(http.StatusOK, res)
		return
	}
}

func parseRelayBody(body []byte) (eip712.RelayRequest, []byte, error) {
	var rb RelayBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return eip712.RelayRequest{}, nil, ErrInvalidRequest.Withf("%v", err)
	}
	data, err := hexutil.Decode(rb.Request.Data)
	if err != nil {
		return eip712.RelayRequest{}, nil, ErrInvalidRequest.Withf("data: %v", err)
	}
	nonce, ok := new(big.Int).SetString(rb.Request.Nonce, 10)
	if !ok {
		return eip712.RelayRequest{}, nil, ErrInvalidRequest.Withf("nonce %q", rb.Request.Nonce)
	}
	sig, err := hexutil.Decode(rb.Signature)
	if err != nil {
		return eip712.RelayRequest{}, nil, ErrInvalidRequest.Withf("signature: %v", err)
	}
	return eip712.RelayRequest{
		From:  common.HexToAddress(rb.Request.From),
		To:    common.HexToAddress(rb.Request.To),
		Data:  data,
		Nonce: nonce,
	}, sig, nil
}

// relay runs the hooks around one hub submission.
func (s *Server) relay(ctx context.Context, req eip712.RelayRequest, sig []byte) (*RelayResponse, error) {
	rc := RelayContext{
		Ctx:       ctx,
		ID:        uuid.NewString(),
		Request:   req,
		Timestamp: time.Now(),
		RequestMetadata: map[string]interface{}{
			"selector": relay.Selector(req.Data),
			"relayer":  s.relayer.Hex(),
		},
	}
	for _, hook := range s.beforeHooks {
		result, err := hook(rc)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, ErrRelayAborted.Withf("%s", result.Reason)
		}
	}

	start := time.Now()
	hub := s.d.Hub
	var res *relay.Result
	receipt, err := s.d.Ledger.Execute(ctx, ledger.Message{From: s.relayer, To: hub.Address()}, func(f *ledger.Frame) error {
		var err error
		res, err = hub.Submit(f, req, sig)
		return err
	})
	if err != nil {
		s.logger.Warn("relay rejected",
			zap.String("id", rc.ID),
			zap.String("from", req.From.Hex()),
			zap.String("to", req.To.Hex()),
			zap.Error(err))
		fc := RelayFailureContext{RelayContext: rc, Error: err, Duration: time.Since(start)}
		for _, hook := range s.onFailureHooks {
			result, hookErr := hook(fc)
			if hookErr != nil {
				s.logger.Error("relay failure hook", zap.String("id", rc.ID), zap.Error(hookErr))
				continue
			}
			if result != nil && result.Recovered {
				out := result.Result
				return &out, nil
			}
		}
		return nil, err
	}

	out := &RelayResponse{
		ID:      rc.ID,
		TxHash:  receipt.TxHash.Hex(),
		Success: res.Success,
		Charge:  res.Charge.String(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	s.logger.Info("relayed",
		zap.String("id", rc.ID),
		zap.String("from", req.From.Hex()),
		zap.String("selector", relay.Selector(req.Data)),
		zap.Bool("success", res.Success),
		zap.String("charge", units.Format(res.Charge, 18)))

	rrc := RelayResultContext{RelayContext: rc, Result: *out, Duration: time.Since(start)}
	for _, hook := range s.afterHooks {
		if err := hook(rrc); err != nil {
			s.logger.Error("after relay hook", zap.String("id", rc.ID), zap.Error(err))
		}
	}
	return out, nil
}

func (s *Server) handlePermit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	violations, err := validate(s.schemas.permit, body)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	if violations != nil {
		s.fail(c, ErrInvalidRequest.WithDetails(map[string]interface{}{"violations": violations}))
		return
	}
	var info permitsponsor.Info
	if err := json.Unmarshal(body, &info); err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	p, err := permitsponsor.ParseInfo(&info)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	if p.Wrapper != s.d.Chai.Address() {
		s.fail(c, ErrUnknownWrapper.Withf("%s", p.Wrapper.Hex()))
		return
	}

	receipt, err := permitsponsor.Submit(c.Request.Context(), s.d.Ledger, s.relayer, p)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("permit submitted",
		zap.String("holder", p.Permit.Holder.Hex()),
		zap.String("spender", p.Permit.Spender.Hex()),
		zap.Bool("allowed", p.Permit.Allowed))
	c.JSON(http.StatusOK, PermitResponse{TxHash: receipt.TxHash.Hex()})
}

// handleCreateForwarder deploys a forwarder for the user through the factory,
// which also whitelists the user on the Swapper.
func (s *Server) handleCreateForwarder(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	violations, err := validate(s.schemas.forwarder, body)
	if err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	if violations != nil {
		s.fail(c, ErrInvalidRequest.WithDetails(map[string]interface{}{"violations": violations}))
		return
	}
	var fb ForwarderBody
	if err := json.Unmarshal(body, &fb); err != nil {
		s.fail(c, ErrInvalidRequest.Withf("%v", err))
		return
	}
	user := common.HexToAddress(fb.User)

	fw, err := s.d.CreateForwarder(c.Request.Context(), user)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := ForwarderResponse{User: user.Hex(), Forwarder: fw.Address().Hex()}
	_ = s.d.Ledger.View(func() error {
		resp.Valid = s.d.Swapper.IsValidUser(user)
		return nil
	})
	s.logger.Info("forwarder created",
		zap.String("user", resp.User),
		zap.String("forwarder", resp.Forwarder))
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleNonce(c *gin.Context) {
	addr, ok := s.pathAddress(c)
	if !ok {
		return
	}
	var nonce *big.Int
	_ = s.d.Ledger.View(func() error {
		nonce = s.d.Hub.Nonce(addr)
		return nil
	})
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "nonce": nonce.String()})
}

func (s *Server) handleRecipientBalance(c *gin.Context) {
	addr, ok := s.pathAddress(c)
	if !ok {
		return
	}
	var balance *big.Int
	_ = s.d.Ledger.View(func() error {
		balance = s.d.Hub.BalanceOf(addr)
		return nil
	})
	c.JSON(http.StatusOK, gin.H{
		"address":   addr.Hex(),
		"balance":   balance.String(),
		"formatted": units.Format(balance, 18),
	})
}

func (s *Server) handleUser(c *gin.Context) {
	addr, ok := s.pathAddress(c)
	if !ok {
		return
	}
	resp := UserResponse{Address: addr.Hex()}
	_ = s.d.Ledger.View(func() error {
		resp.Valid = s.d.Swapper.IsValidUser(addr)
		if fw := s.d.Factory.GetForwarder(addr); fw != (common.Address{}) {
			resp.Forwarder = fw.Hex()
		}
		return nil
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) pathAddress(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		s.fail(c, ErrInvalidAddress.Withf("%q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, toErrorResponse(err))
}
