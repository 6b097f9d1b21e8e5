// Command floatifyd bootstraps a floatify deployment on an in-process ledger,
// runs the yield keeper and serves the relay API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/floatify/floatify/go/config"
	"github.com/floatify/floatify/go/deploy"
	"github.com/floatify/floatify/go/ledger"
	"github.com/floatify/floatify/go/logger"
	"github.com/floatify/floatify/go/operator"
	"github.com/floatify/floatify/go/relayserver"
	evmsigner "github.com/floatify/floatify/go/signers/evm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "floatifyd: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogStage, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	operatorSigner, err := evmsigner.NewSignerFromPrivateKey(cfg.OperatorKey)
	if err != nil {
		return fmt.Errorf("operator key: %w", err)
	}
	relayerSigner, err := evmsigner.NewSignerFromPrivateKey(cfg.RelayerKey)
	if err != nil {
		return fmt.Errorf("relayer key: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := ledger.New(ledger.WithChainID(cfg.ChainID), ledger.WithLogger(log.Named("ledger")))
	opts := deploy.DefaultOptions(operatorSigner.Address())
	opts.HubDeposit = cfg.RelayDeposit
	opts.Relayers = []common.Address{relayerSigner.Address()}
	opts.Relay.GasPrice = cfg.RelayGasPrice
	opts.Relay.FeePercent = cfg.RelayFeePercent
	opts.MaxSlippageBps = cfg.MaxSlippageBps
	opts.Logger = log.Named("deploy")
	d, err := deploy.Bootstrap(ctx, l, opts)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("deployment ready",
		zap.String("chainId", cfg.ChainID.String()),
		zap.String("admin", d.Admin.Hex()),
		zap.String("factory", d.Factory.Address().Hex()),
		zap.String("swapper", d.Swapper.Address().Hex()),
		zap.String("hub", d.Hub.Address().Hex()),
		zap.String("relayer", relayerSigner.Address().Hex()))

	srv, err := relayserver.New(d, relayerSigner.Address(),
		relayserver.WithLogger(log.Named("relay")),
		relayserver.WithIdempotencyTTL(cfg.IdempotencyTTL),
		relayserver.WithAdminAPIKey(cfg.AdminAPIKey))
	if err != nil {
		return err
	}
	if cfg.AdminAPIKey == "" {
		log.Warn("admin api key not set, forwarder provisioning is disabled")
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	keeper := operator.New(d, d.Admin,
		operator.WithLogger(log.Named("keeper")),
		operator.WithInterval(cfg.KeeperInterval))
	keeperDone := make(chan error, 1)
	go func() { keeperDone <- keeper.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("relay api listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		<-keeperDone
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-keeperDone
}
