// internal/registry/registry.go
package registry

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/config"
	"github.com/Gammanik/replistore/internal/coordinator"
	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/node"
)

var ErrUnknownNode = errors.New("unknown node")

// Status снимок состояния узла для отображения
type Status struct {
	ID      int    `json:"id"`
	Port    int    `json:"port"`
	Dir     string `json:"dir"`
	Running bool   `json:"running"`
}

// Registry фиксированный набор узлов процесса. Заполняется один раз при старте;
// дальше меняется только состояние каждого узла через его Start/Stop.
type Registry struct {
	nodes []*node.Node // по возрастанию ID
	log   *zap.Logger
}

// New создает узлы по конфигурации и загружает их папки. Узлы не запускаются.
func New(cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)

	entries := make([]config.Node, len(cfg.Nodes))
	copy(entries, cfg.Nodes)
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	r := &Registry{log: logger.Named("registry")}
	for _, entry := range entries {
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
			return nil, err
		}
		r.nodes = append(r.nodes, n)
	}
	return r, nil
}

// Nodes узлы в порядке ID
func (r *Registry) Nodes() []*node.Node {
	out := make([]*node.Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Node возвращает узел по ID
func (r *Registry) Node(id int) (*node.Node, error) {
	for _, n := range r.nodes {
		if n.ID() == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("node %d: %w", id, ErrUnknownNode)
}

// Start запускает один узел
func (r *Registry) Start(id int) error {
	n, err := r.Node(id)
	if err != nil {
		return err
	}
	return n.Start()
}

// Stop останавливает один узел
func (r *Registry) Stop(id int) error {
	n, err := r.Node(id)
	if err != nil {
		return err
	}
	n.Stop()
	return nil
}

// StartAll запускает все узлы; ошибки отдельных узлов собираются вместе
func (r *Registry) StartAll() error {
	var errs []error
	for _, n := range r.nodes {
		if err := n.Start(); err != nil {
			r.log.Error("Failed to start node", zap.Int("node_id", n.ID()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll останавливает все узлы
func (r *Registry) StopAll() {
	for _, n := range r.nodes {
		n.Stop()
	}
}

// Endpoints адреса узлов для координатора.
// Порт берется у узла, поэтому порт 0 из конфигурации годится после первого старта.
func (r *Registry) Endpoints() []coordinator.Endpoint {
	eps := make([]coordinator.Endpoint, 0, len(r.nodes))
	for _, n := range r.nodes {
		eps = append(eps, coordinator.Endpoint{
			ID:   n.ID(),
			Addr: n.Addr(),
		})
	}
	return eps
}

// Statuses снимок состояния всех узлов
func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, Status{
			ID:      n.ID(),
			Port:    n.Port(),
			Dir:     n.Dir(),
			Running: n.Running(),
		})
	}
	return out
}
