// Package config loads the node registry and process settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/protocol"
)

var (
	ErrConfigFileUnreadable     = errors.New("config file unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file unmarshallable")
	ErrNodesMissing             = errors.New("no nodes configured")
	ErrInvalidNodeID            = errors.New("node id must be positive")
	ErrDuplicateNodeID          = errors.New("duplicate node id")
	ErrDuplicatePort            = errors.New("duplicate node port")
	ErrNodeDirMissing           = errors.New("node dir is required")
	ErrInvalidTimeout           = errors.New("timeouts must be positive")
	ErrInvalidMessageSize       = errors.New("maxMessageSize must be positive")
)

// Node is one registry entry.
type Node struct {
	ID   int    `yaml:"id"`
	Port int    `yaml:"port"`
	Dir  string `yaml:"dir"`
}

// Gateway holds the HTTP gateway settings.
type Gateway struct {
	Listen string `yaml:"listen"`
}

// Config holds everything a process needs to host or reach the nodes.
type Config struct {
	Host           string         `yaml:"host"`
	DialTimeout    time.Duration  `yaml:"dialTimeout"`
	AcceptPoll     time.Duration  `yaml:"acceptPoll"`
	MaxMessageSize int            `yaml:"maxMessageSize"`
	Nodes          []Node         `yaml:"nodes"`
	Gateway        Gateway        `yaml:"gateway"`
	MetaDB         string         `yaml:"metaDB"`
	Logging        logging.Config `yaml:"logging"`
}

// Default returns the reference deployment: three nodes on localhost:5001-5003.
func Default() *Config {
	return &Config{
		Host:           "localhost",
		DialTimeout:    time.Second,
		AcceptPoll:     time.Second,
		MaxMessageSize: protocol.MaxMessageSize,
		Nodes: []Node{
			{ID: 1, Port: 5001, Dir: "files/node1"},
			{ID: 2, Port: 5002, Dir: "files/node2"},
			{ID: 3, Port: 5003, Dir: "files/node3"},
		},
		Gateway: Gateway{Listen: ":8080"},
		MetaDB:  "files/meta.db",
		Logging: logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFileUnreadable, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigFileUnmarshallable, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the registry and timeouts.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return ErrNodesMissing
	}
	if c.DialTimeout <= 0 || c.AcceptPoll <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxMessageSize <= 0 {
		return ErrInvalidMessageSize
	}

	ids := make(map[int]bool, len(c.Nodes))
	ports := make(map[int]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidNodeID, n.ID)
		}
		if ids[n.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateNodeID, n.ID)
		}
		ids[n.ID] = true

		// port 0 means "pick one", so it may repeat
		if n.Port != 0 {
			if ports[n.Port] {
				return fmt.Errorf("%w: %d", ErrDuplicatePort, n.Port)
			}
			ports[n.Port] = true
		}

		if n.Dir == "" {
			return fmt.Errorf("%w: node %d", ErrNodeDirMissing, n.ID)
		}
	}
	return nil
}
