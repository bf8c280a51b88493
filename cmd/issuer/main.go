package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Concordium/concordium-web3id/internal/api"
	"github.com/Concordium/concordium-web3id/internal/config"
	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/services"
	"github.com/Concordium/concordium-web3id/internal/gateways"
	"github.com/Concordium/concordium-web3id/internal/health"
	"github.com/Concordium/concordium-web3id/internal/log"
	"github.com/Concordium/concordium-web3id/internal/metrics"
	"github.com/Concordium/concordium-web3id/internal/ratelimit"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Error(context.Background(), "cannot load config", "err", err)
		return
	}
	if err := cfg.Sanitize(); err != nil {
		log.Error(context.Background(), "invalid config", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(log.NewContext(context.Background(), cfg.Log.Level, cfg.Log.Mode, os.Stdout))
	defer cancel()

	registry, err := domain.ParseContractAddress(cfg.Issuer.Registry)
	if err != nil {
		log.Error(ctx, "invalid registry address", "err", err)
		return
	}
	sender, err := walletAddress(cfg.Issuer.WalletPath)
	if err != nil {
		log.Error(ctx, "cannot load issuer wallet", "err", err, "path", cfg.Issuer.WalletPath)
		return
	}

	ledger := gateways.NewLedgerService(&gateways.LedgerConfig{
		BaseURL:        cfg.Ledger.URL,
		RequestTimeout: cfg.Ledger.RequestTimeout,
	})
	proofs := gateways.NewProofService(&gateways.ProofConfig{
		ServerURL:       cfg.Verifier.ProofServiceURL,
		ResponseTimeout: cfg.Ledger.RequestTimeout,
	})

	limiter := ratelimit.New(cfg.Issuer.RateLimitCapacity, cfg.Issuer.RateLimitRepeats)
	worker := services.NewIssuanceWorker(ledger, limiter, services.WorkerConfig{
		Sender:      sender,
		Registry:    registry,
		MetadataURL: cfg.Issuer.MetadataURL,
		MaxEnergy:   cfg.Issuer.MaxRegisterEnergy,
		TxExpiry:    cfg.Issuer.TxExpiry,
	})
	if err := worker.Start(ctx); err != nil {
		log.Error(ctx, "cannot start issuance worker", "err", err)
		return
	}

	issuance := services.NewIssuance(worker, proofs, registry, cfg.Issuer.CredentialType, cfg.Issuer.CredentialSchema)

	mux := api.NewMux(ctx)
	api.NewIssuerServer(issuance, health.New(), metrics.New()).Routes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: mux,
	}
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info(ctx, fmt.Sprintf("issuer started on port:%d", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "starting http server", "err", err)
		}
	}()

	<-quit
	log.Info(ctx, "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutting down http server", "err", err)
	}
	// The worker goes down last so in-flight submissions finish.
	worker.Stop()
}

func walletAddress(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var wallet struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &wallet); err != nil {
		return "", err
	}
	if wallet.Address == "" {
		return "", errors.New("wallet file has no address")
	}
	return wallet.Address, nil
}
