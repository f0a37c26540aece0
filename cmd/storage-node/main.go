// cmd/storage-node/main.go
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/config"
	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/node"
)

var (
	configPath = flag.String("config", "", "Path to cluster YAML config (default: built-in 3-node registry)")
	nodeID     = flag.Int("id", 0, "Node ID (default: from environment NODE_ID)")
)

func main() {
	flag.Parse()

	// Используем ID из аргумента или переменной окружения
	id := *nodeID
	if id == 0 {
		v, err := strconv.Atoi(os.Getenv("NODE_ID"))
		if err != nil || v <= 0 {
			log.Fatal("Node ID is required. Set NODE_ID environment variable or use -id flag.")
		}
		id = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Ищем узел в реестре
	var entry *config.Node
	for i := range cfg.Nodes {
		if cfg.Nodes[i].ID == id {
			entry = &cfg.Nodes[i]
			break
		}
	}
	if entry == nil {
		logger.Fatal("Node is not in the registry", zap.Int("node_id", id))
	}

	n, err := node.New(node.Config{
		ID:             entry.ID,
		Host:           cfg.Host,
		Port:           entry.Port,
		Dir:            entry.Dir,
		AcceptPoll:     cfg.AcceptPoll,
		MaxMessageSize: cfg.MaxMessageSize,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Failed to create node", zap.Error(err))
	}

	if err := n.Start(); err != nil {
		logger.Fatal("Failed to start node", zap.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	n.Stop()
}
