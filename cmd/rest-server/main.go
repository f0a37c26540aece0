// cmd/rest-server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/api"
	"github.com/Gammanik/replistore/internal/config"
	"github.com/Gammanik/replistore/internal/coordinator"
	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/metastore"
	"github.com/Gammanik/replistore/internal/registry"
	"github.com/Gammanik/replistore/internal/storage"
)

var (
	configPath = flag.String("config", "", "Path to cluster YAML config (default: built-in 3-node registry)")
	listen     = flag.String("listen", "", "HTTP address to listen on (overrides gateway.listen)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Gateway.Listen = *listen
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Поднимаем все узлы реестра в этом процессе
	reg, err := registry.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build registry", zap.Error(err))
	}
	if err := reg.StartAll(); err != nil {
		// Узел, не поднявшийся на старте, просто считается выключенным
		logger.Warn("Some nodes failed to start", zap.Error(err))
	}
	defer reg.StopAll()

	// Инициализируем журнал операций
	if err := os.MkdirAll(filepath.Dir(cfg.MetaDB), 0755); err != nil {
		logger.Fatal("Failed to create metastore directory", zap.Error(err))
	}
	store, err := metastore.NewBoltStore(cfg.MetaDB)
	if err != nil {
		logger.Fatal("Failed to open metastore", zap.Error(err))
	}
	defer store.Close()

	coord, err := coordinator.New(coordinator.Config{
		Client:    storage.New(cfg.DialTimeout, cfg.MaxMessageSize),
		Endpoints: reg.Endpoints(),
		Journal:   store,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to create coordinator", zap.Error(err))
	}

	handler := &api.FileHandler{
		Coordinator: coord,
		Registry:    reg,
		Store:       store,
		Logger:      logger,
	}

	// Настраиваем и запускаем HTTP сервер
	server := &http.Server{
		Addr:         cfg.Gateway.Listen,
		Handler:      handler.Router(),
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	go func() {
		logger.Info("REST server starting",
			zap.String("addr", cfg.Gateway.Listen),
			zap.Int("nodes", len(cfg.Nodes)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("REST server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("REST server shutdown", zap.Error(err))
	}
}
