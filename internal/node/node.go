// internal/node/node.go
package node

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/metrics"
	"github.com/Gammanik/replistore/internal/protocol"
)

// DefaultAcceptPoll интервал, с которым цикл accept проверяет остановку
const DefaultAcceptPoll = time.Second

// Config параметры одного узла хранения
type Config struct {
	ID             int
	Host           string // по умолчанию localhost
	Port           int    // 0 - выбрать порт при первом старте и держать его дальше
	Dir            string
	AcceptPoll     time.Duration
	MaxMessageSize int
	Logger         *zap.Logger
}

// Node сервер хранения: таблица файлов, папка и слушающий сокет
type Node struct {
	id         int
	host       string
	acceptPoll time.Duration
	maxMessage int
	log        *zap.Logger

	table *fileTable

	// mu защищает состояние жизненного цикла
	mu       sync.Mutex
	port     int
	running  bool
	listener *net.TCPListener
	done     chan struct{}
}

// New создает узел и загружает в память файлы, уже лежащие в его папке
func New(cfg Config) (*Node, error) {
	if cfg.Dir == "" {
		return nil, errors.New("node directory is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.AcceptPoll <= 0 {
		cfg.AcceptPoll = DefaultAcceptPoll
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = protocol.MaxMessageSize
	}

	table, err := loadTable(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", cfg.ID, err)
	}

	n := &Node{
		id:         cfg.ID,
		host:       cfg.Host,
		port:       cfg.Port,
		acceptPoll: cfg.AcceptPoll,
		maxMessage: cfg.MaxMessageSize,
		log:        logging.OrNop(cfg.Logger).Named("node").With(zap.Int("node_id", cfg.ID)),
		table:      table,
	}

	metrics.SetNodeFiles(n.id, table.count())
	metrics.SetNodeRunning(n.id, false)
	n.log.Info("Node loaded", zap.String("dir", cfg.Dir), zap.Int("files", table.count()))
	return n, nil
}

// ID идентификатор узла в реестре
func (n *Node) ID() int { return n.id }

// Dir папка узла
func (n *Node) Dir() string { return n.table.dir }

// Port текущий настроенный порт (после первого старта - реальный)
func (n *Node) Port() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.port
}

// Addr адрес, по которому узел принимает соединения
func (n *Node) Addr() string {
	return net.JoinHostPort(n.host, strconv.Itoa(n.Port()))
}

// Running сообщает, запущен ли слушатель
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Files имена файлов в таблице узла
func (n *Node) Files() []string {
	return n.table.names()
}

// Start поднимает слушающий сокет. Повторный вызов на работающем узле ничего не делает.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	addr := net.JoinHostPort(n.host, strconv.Itoa(n.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node %d: listen %s: %w", n.id, addr, err)
	}
	tcp := ln.(*net.TCPListener)

	// Запоминаем порт, чтобы рестарт поднимался на том же адресе
	n.port = tcp.Addr().(*net.TCPAddr).Port
	n.listener = tcp
	n.running = true
	n.done = make(chan struct{})

	go n.serve(tcp, n.done)

	metrics.SetNodeRunning(n.id, true)
	n.log.Info("Node listening", zap.String("addr", tcp.Addr().String()))
	return nil
}

// Stop закрывает сокет и ждет выхода цикла accept.
// Обработчики уже принятых соединений дорабатывают сами.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	ln, done := n.listener, n.done
	n.listener = nil
	n.mu.Unlock()

	// Закрытие сокета разблокирует Accept сразу, не дожидаясь дедлайна
	if err := ln.Close(); err != nil {
		n.log.Warn("Failed to close listener", zap.Error(err))
	}
	<-done

	metrics.SetNodeRunning(n.id, false)
	n.log.Info("Node stopped")
}

// active проверяет, что ln все еще текущий сокет работающего узла
func (n *Node) active(ln *net.TCPListener) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running && n.listener == ln
}

// serve цикл accept; каждое соединение обслуживается в своей горутине
func (n *Node) serve(ln *net.TCPListener, done chan struct{}) {
	defer close(done)
	defer ln.Close()

	for n.active(ln) {
		if err := ln.SetDeadline(time.Now().Add(n.acceptPoll)); err != nil {
			n.log.Debug("Failed to set accept deadline", zap.Error(err))
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if n.active(ln) {
				n.log.Error("Accept failed, listener shutting down", zap.Error(err))
				n.markStopped(ln)
			}
			return
		}

		go n.handleConn(conn)
	}
}

// markStopped переводит узел в STOPPED, если сокет умер сам
func (n *Node) markStopped(ln *net.TCPListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == ln {
		n.running = false
		n.listener = nil
		metrics.SetNodeRunning(n.id, false)
	}
}
