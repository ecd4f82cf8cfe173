package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crossvault/bridge"
	"crossvault/bridge/adapters"
	"crossvault/config"
	"crossvault/gateway"
	"crossvault/native/vault"
	"crossvault/native/vault/store"
	"crossvault/observability/logging"
	"crossvault/storage"
)

const envName = "CROSSVAULT_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envName))
	logger := logging.Setup("vaultd", cfg.InstanceName, env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	engine := vault.NewEngine(cfg.InstanceName, common.HexToAddress(cfg.VaultAddress), vault.RiskParameters{
		MaxLTV:               cfg.Risk.MaxLTVBps,
		LiquidationThreshold: cfg.Risk.LiquidationThresholdBps,
	})
	engine.SetState(store.New(db))
	engine.SetInterestModel(vault.NewInterestModel(cfg.Rates.BaseRateBps, cfg.Rates.SlopeBps, cfg.Rates.SpreadBps))
	engine.SetPeers(cfg.Peers)

	trusted := bridge.NewTrustedVaults()
	for instance, addr := range cfg.TrustedVaults {
		trusted.Set(instance, common.HexToAddress(addr))
	}

	router := bridge.NewRouter(cfg.InstanceName, trusted, bridge.NewPersistentReplayGuard(db), engine, logger)
	warp := adapters.NewWarp(cfg.InstanceName, cfg.Peers, big.NewInt(cfg.Warp.BaseFeeWei), big.NewInt(cfg.Warp.PerByteFeeWei))
	bus := adapters.NewRelayBus(cfg.InstanceName, cfg.Peers, big.NewInt(cfg.RelayBus.FlatFeeWei))
	if err := router.RegisterAdapter(warp); err != nil {
		logger.Error("register warp adapter", "err", err)
		os.Exit(1)
	}
	if err := router.RegisterAdapter(bus); err != nil {
		logger.Error("register relaybus adapter", "err", err)
		os.Exit(1)
	}
	for instance, protocol := range cfg.Adapters {
		if err := router.SetPreferredAdapter(instance, protocol); err != nil {
			logger.Error("set preferred adapter", "instance", instance, "protocol", protocol, "err", err)
			os.Exit(1)
		}
	}
	engine.SetBroadcaster(router)

	server := gateway.NewServer(engine, router, big.NewInt(cfg.FeeBudgetWei), logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("vaultd listening", "addr", cfg.ListenAddress, "peers", strings.Join(cfg.Peers, ","))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("vaultd stopped")
}
