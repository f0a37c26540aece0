// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/metastore"
	"github.com/Gammanik/replistore/internal/metrics"
	"github.com/Gammanik/replistore/internal/storage"
	"github.com/Gammanik/replistore/internal/utils"
)

var (
	// ErrUnavailable ни один узел не отдал файл
	ErrUnavailable = errors.New("file unavailable on all nodes")
	// ErrNotFound конкретный узел ответил, но файла у него нет
	ErrNotFound = errors.New("file not found on node")
	// ErrUnknownNode узла с таким ID нет в реестре
	ErrUnknownNode = errors.New("unknown node")
)

// Endpoint адрес узла из реестра
type Endpoint struct {
	ID   int
	Addr string
}

// Config параметры координатора
type Config struct {
	Client    storage.Client
	Endpoints []Endpoint
	Journal   metastore.MetaStore // необязательный журнал операций
	Logger    *zap.Logger
}

// Coordinator прячет N независимых узлов за четырьмя операциями.
// Узлы опрашиваются последовательно в порядке ID.
type Coordinator struct {
	client    storage.Client
	endpoints []Endpoint
	journal   metastore.MetaStore
	log       *zap.Logger
}

// New создает координатор
func New(cfg Config) (*Coordinator, error) {
	if cfg.Client == nil {
		return nil, errors.New("storage client is required")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}

	endpoints := make([]Endpoint, len(cfg.Endpoints))
	copy(endpoints, cfg.Endpoints)
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].ID < endpoints[j].ID })
	for i := 1; i < len(endpoints); i++ {
		if endpoints[i].ID == endpoints[i-1].ID {
			return nil, fmt.Errorf("duplicate endpoint id %d", endpoints[i].ID)
		}
	}

	return &Coordinator{
		client:    cfg.Client,
		endpoints: endpoints,
		journal:   cfg.Journal,
		log:       logging.OrNop(cfg.Logger).Named("coordinator"),
	}, nil
}

// Endpoints узлы в порядке ID
func (c *Coordinator) Endpoints() []Endpoint {
	out := make([]Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

func (c *Coordinator) endpoint(id int) (Endpoint, error) {
	for _, ep := range c.endpoints {
		if ep.ID == id {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("node %d: %w", id, ErrUnknownNode)
}

// UploadToAll отправляет файл на каждый узел независимо.
// Частичный успех допустим; разбираться с картой результатов - дело вызывающего.
func (c *Coordinator) UploadToAll(ctx context.Context, name string, content []byte) Results {
	results := make(Results, len(c.endpoints))
	for _, ep := range c.endpoints {
		err := c.client.Upload(ctx, ep.Addr, name, content)
		c.observe(ep.ID, "upload", err)
		results[ep.ID] = err
	}

	metrics.RecordFanout(metastore.OpUpload, len(results.Succeeded()), len(results))
	c.record(&metastore.FanoutRecord{
		Op:       metastore.OpUpload,
		Filename: name,
		Size:     len(content),
		Checksum: utils.CalculateSHA256(content),
	}, results)

	c.log.Info("Upload fan-out finished",
		zap.String("name", name),
		zap.Int("size", len(content)),
		zap.Ints("succeeded", results.Succeeded()),
		zap.Ints("failed", results.Failed()))
	return results
}

// DeleteFromAll удаляет файл с каждого узла независимо
func (c *Coordinator) DeleteFromAll(ctx context.Context, name string) Results {
	results := make(Results, len(c.endpoints))
	for _, ep := range c.endpoints {
		err := c.client.Delete(ctx, ep.Addr, name)
		c.observe(ep.ID, "delete", err)
		results[ep.ID] = err
	}

	metrics.RecordFanout(metastore.OpDeleteAll, len(results.Succeeded()), len(results))
	c.record(&metastore.FanoutRecord{Op: metastore.OpDeleteAll, Filename: name}, results)

	c.log.Info("Delete fan-out finished",
		zap.String("name", name),
		zap.Ints("succeeded", results.Succeeded()),
		zap.Ints("failed", results.Failed()))
	return results
}

// DeleteFromOne удаляет файл с одного узла
func (c *Coordinator) DeleteFromOne(ctx context.Context, nodeID int, name string) error {
	ep, err := c.endpoint(nodeID)
	if err != nil {
		return err
	}

	err = c.client.Delete(ctx, ep.Addr, name)
	c.observe(ep.ID, "delete", err)
	c.record(&metastore.FanoutRecord{Op: metastore.OpDeleteOne, Filename: name}, Results{ep.ID: err})
	return err
}

// ListUnion объединяет списки всех ответивших узлов.
// Узел, не ответивший за таймаут, считается выключенным и ничего не добавляет.
func (c *Coordinator) ListUnion(ctx context.Context) Listing {
	seen := make(map[string]struct{})
	alive := make(map[int]bool, len(c.endpoints))

	for _, ep := range c.endpoints {
		names, err := c.client.List(ctx, ep.Addr)
		c.observe(ep.ID, "list", err)
		alive[ep.ID] = err == nil
		if err != nil {
			continue
		}
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}

	files := make([]string, 0, len(seen))
	for name := range seen {
		files = append(files, name)
	}
	sort.Strings(files)

	return Listing{Files: files, Alive: alive}
}

// ListNode возвращает список файлов одного узла
func (c *Coordinator) ListNode(ctx context.Context, nodeID int) ([]string, error) {
	ep, err := c.endpoint(nodeID)
	if err != nil {
		return nil, err
	}

	names, err := c.client.List(ctx, ep.Addr)
	c.observe(ep.ID, "list", err)
	return names, err
}

// DownloadFromAny обходит узлы по порядку ID и возвращает первое непустое содержимое.
// Версии не сравниваются: при расхождении реплик выигрывает узел с меньшим ID.
func (c *Coordinator) DownloadFromAny(ctx context.Context, name string) ([]byte, int, error) {
	for _, ep := range c.endpoints {
		data, err := c.client.Download(ctx, ep.Addr, name)
		c.observe(ep.ID, "download", err)
		if err != nil || len(data) == 0 {
			continue
		}

		c.log.Debug("Download served", zap.String("name", name), zap.Int("node_id", ep.ID))
		return data, ep.ID, nil
	}

	return nil, 0, fmt.Errorf("%q: %w", name, ErrUnavailable)
}

// DownloadFrom скачивает файл с конкретного узла
func (c *Coordinator) DownloadFrom(ctx context.Context, nodeID int, name string) ([]byte, error) {
	ep, err := c.endpoint(nodeID)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Download(ctx, ep.Addr, name)
	c.observe(ep.ID, "download", err)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%q on node %d: %w", name, nodeID, ErrNotFound)
	}
	return data, nil
}

// observe пишет метрику и лог по одному вызову узла
func (c *Coordinator) observe(nodeID int, op string, err error) {
	outcome := Outcome(err)
	metrics.RecordNodeCall(nodeID, op, outcome)
	if err != nil {
		c.log.Debug("Node call failed",
			zap.Int("node_id", nodeID),
			zap.String("op", op),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}

// record пишет итог операции в журнал; ошибка журнала не меняет результат
func (c *Coordinator) record(rec *metastore.FanoutRecord, results Results) {
	if c.journal == nil {
		return
	}

	rec.Nodes = make(map[int]string, len(results))
	for id, err := range results {
		if err == nil {
			rec.Nodes[id] = metastore.OutcomeOK
		} else {
			rec.Nodes[id] = err.Error()
		}
	}

	if err := c.journal.Record(rec); err != nil {
		c.log.Warn("Failed to record fan-out", zap.String("op", rec.Op), zap.Error(err))
	}
}
