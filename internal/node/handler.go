// internal/node/handler.go
package node

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/metrics"
	"github.com/Gammanik/replistore/internal/protocol"
)

var (
	ErrNoSuchFile     = errors.New("no such file")
	ErrUnknownRequest = errors.New("unknown request")
)

// handleConn один цикл запрос/ответ на соединении
func (n *Node) handleConn(conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	action := "invalid"
	resp := protocol.Fail()
	var err error

	defer func() {
		// Паника в обработчике не должна уронить процесс
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			resp = protocol.Fail()
		}

		if werr := protocol.WriteResponse(conn, resp, n.maxMessage); werr != nil {
			n.log.Warn("Failed to write response",
				zap.String("action", action),
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(werr))
			if err == nil {
				err = werr
			}
		}

		if err != nil {
			n.log.Warn("Request failed", zap.String("action", action), zap.Error(err))
		}
		metrics.RecordNodeRequest(n.id, action, err == nil, time.Since(start))
	}()

	req, rerr := protocol.ReadRequest(conn, n.maxMessage)
	if rerr != nil {
		err = fmt.Errorf("read request: %w", rerr)
		return
	}
	action = string(req.Action())

	resp, err = n.Handle(req)
}

// Handle выполняет запрос над таблицей узла. Ошибка нужна только для логов
// и тестов: по сети уходит лишь ответ.
func (n *Node) Handle(req protocol.Request) (protocol.Response, error) {
	switch r := req.(type) {
	case protocol.Upload:
		if err := n.table.put(r.Name, r.Content); err != nil {
			return protocol.Fail(), fmt.Errorf("upload %q: %w", r.Name, err)
		}
		metrics.RecordUpload(len(r.Content))
		metrics.SetNodeFiles(n.id, n.table.count())
		n.log.Debug("File stored", zap.String("name", r.Name), zap.Int("size", len(r.Content)))
		return protocol.OK(), nil

	case protocol.List:
		return protocol.Names(n.table.names()), nil

	case protocol.Download:
		data, ok := n.table.get(r.Name)
		if !ok {
			// Пустой ответ - единственный признак отсутствия файла
			return protocol.Content(nil), nil
		}
		metrics.RecordDownload(len(data))
		return protocol.Content(data), nil

	case protocol.Delete:
		existed, err := n.table.remove(r.Name)
		if !existed {
			return protocol.Fail(), fmt.Errorf("delete %q: %w", r.Name, ErrNoSuchFile)
		}
		if err != nil {
			n.log.Warn("Failed to remove file from disk", zap.String("name", r.Name), zap.Error(err))
		}
		metrics.SetNodeFiles(n.id, n.table.count())
		return protocol.OK(), nil

	default:
		return protocol.Fail(), fmt.Errorf("%T: %w", req, ErrUnknownRequest)
	}
}
