package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Concordium/concordium-web3id/internal/api"
	"github.com/Concordium/concordium-web3id/internal/cache"
	"github.com/Concordium/concordium-web3id/internal/config"
	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/core/services"
	"github.com/Concordium/concordium-web3id/internal/db"
	"github.com/Concordium/concordium-web3id/internal/gateways"
	"github.com/Concordium/concordium-web3id/internal/health"
	"github.com/Concordium/concordium-web3id/internal/log"
	"github.com/Concordium/concordium-web3id/internal/metrics"
	iRedis "github.com/Concordium/concordium-web3id/internal/redis"
	"github.com/Concordium/concordium-web3id/internal/repositories"
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

	registries, err := platformRegistries(cfg)
	if err != nil {
		log.Error(ctx, "invalid registry configuration", "err", err)
		return
	}

	storage, err := db.NewStorage(cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", "err", err)
		return
	}
	defer func() { _ = storage.Close() }()

	pingers := []health.Ping{storage.Pgx}
	appCache := cache.Cache(&cache.NullCache{})
	if cfg.Cache.RedisUrl != "" {
		client, err := iRedis.Open(ctx, cfg.Cache.RedisUrl)
		if err != nil {
			log.Error(ctx, "cannot connect to redis", "err", err)
			return
		}
		appCache = cache.NewRedisCache(client)
		pingers = append(pingers, iRedis.NewWrapper(client))
	}

	ledger := gateways.NewLedgerService(&gateways.LedgerConfig{
		BaseURL:        cfg.Ledger.URL,
		RequestTimeout: cfg.Ledger.RequestTimeout,
	})
	proofs := gateways.NewProofService(&gateways.ProofConfig{
		ServerURL:       cfg.Verifier.ProofServiceURL,
		ResponseTimeout: cfg.Ledger.RequestTimeout,
	})
	var directory ports.SocialDirectory
	if cfg.Verifier.DiscordBotToken != "" {
		directory = gateways.NewDiscordDirectory(cfg.Verifier.DiscordBotToken, cfg.Ledger.RequestTimeout)
	}

	repo := repositories.NewVerifications(*storage)
	verifier := services.NewPresentationVerifier(ledger, proofs, repo, directory, appCache,
		registries, cfg.Verifier.FreshnessTolerance, cfg.Cache.TTL)

	mux := api.NewMux(ctx)
	api.NewVerifierServer(verifier, health.New(pingers...), metrics.New()).Routes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: mux,
	}
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info(ctx, fmt.Sprintf("verifier started on port:%d", cfg.ServerPort))
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
}

func platformRegistries(cfg *config.Configuration) (map[domain.Platform]domain.ContractAddress, error) {
	registries := make(map[domain.Platform]domain.ContractAddress, 2)
	for platform, addr := range map[domain.Platform]string{
		domain.PlatformTelegram: cfg.Ledger.TelegramRegistry,
		domain.PlatformDiscord:  cfg.Ledger.DiscordRegistry,
	} {
		if addr == "" {
			return nil, fmt.Errorf("no registry address configured for %s", platform)
		}
		parsed, err := domain.ParseContractAddress(addr)
		if err != nil {
			return nil, err
		}
		registries[platform] = parsed
	}
	return registries, nil
}
