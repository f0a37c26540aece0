package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Gammanik/replistore/internal/protocol"
)

// DefaultTimeout сколько ждем один узел, прежде чем считать его недоступным
const DefaultTimeout = time.Second

var (
	// ErrUnreachable узел не ответил: отказ соединения, таймаут, разрыв
	ErrUnreachable = errors.New("node unreachable")
	// ErrRejected узел ответил отказом
	ErrRejected = errors.New("node rejected request")
	// ErrMalformed ответ не той формы
	ErrMalformed = errors.New("malformed response")
)

// Client интерфейс для взаимодействия с серверами хранения
type Client interface {
	// Upload загружает файл на указанный узел
	Upload(ctx context.Context, addr, name string, content []byte) error

	// List возвращает имена файлов узла
	List(ctx context.Context, addr string) ([]string, error)

	// Download скачивает файл с узла. Пустой результат означает "нет файла"
	// (или пустой файл - протокол их не различает).
	Download(ctx context.Context, addr, name string) ([]byte, error)

	// Delete удаляет файл с узла
	Delete(ctx context.Context, addr, name string) error
}

// TCPClient реализация Client поверх протокола: одно соединение на запрос
type TCPClient struct {
	timeout    time.Duration
	maxMessage int
}

// New создает клиент с таймаутом на один узел
func New(timeout time.Duration, maxMessage int) *TCPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxMessage <= 0 {
		maxMessage = protocol.MaxMessageSize
	}
	return &TCPClient{timeout: timeout, maxMessage: maxMessage}
}

// roundTrip открывает соединение, шлет один запрос и читает один ответ
func (c *TCPClient) roundTrip(ctx context.Context, addr string, req protocol.Request) (protocol.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, addr, err)
	}
	defer conn.Close()

	// Таймаут ограничивает весь обмен, не только соединение
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := protocol.WriteRequest(conn, req, c.maxMessage); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return protocol.Response{}, err
		}
		return protocol.Response{}, fmt.Errorf("%w: send to %s: %v", ErrUnreachable, addr, err)
	}

	body, err := protocol.ReadFrame(conn, c.maxMessage)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: read from %s: %v", ErrUnreachable, addr, err)
	}

	resp, err := protocol.UnmarshalResponse(body)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %s: %v", ErrMalformed, addr, err)
	}
	return resp, nil
}

// ack разбирает ответ на upload/delete
func ack(resp protocol.Response) error {
	if resp.Kind != protocol.KindPayload {
		return fmt.Errorf("%w: expected status, got %s", ErrMalformed, resp.Kind)
	}
	if !resp.IsOK() {
		return ErrRejected
	}
	return nil
}

// Upload загружает файл на узел
func (c *TCPClient) Upload(ctx context.Context, addr, name string, content []byte) error {
	resp, err := c.roundTrip(ctx, addr, protocol.Upload{Name: name, Content: content})
	if err != nil {
		return err
	}
	return ack(resp)
}

// List возвращает имена файлов узла
func (c *TCPClient) List(ctx context.Context, addr string) ([]string, error) {
	resp, err := c.roundTrip(ctx, addr, protocol.List{})
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.KindNames {
		return nil, fmt.Errorf("%w: expected names, got %s", ErrMalformed, resp.Kind)
	}
	if resp.Names == nil {
		return []string{}, nil
	}
	return resp.Names, nil
}

// Download скачивает файл с узла
func (c *TCPClient) Download(ctx context.Context, addr, name string) ([]byte, error) {
	resp, err := c.roundTrip(ctx, addr, protocol.Download{Name: name})
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.KindPayload {
		return nil, fmt.Errorf("%w: expected payload, got %s", ErrMalformed, resp.Kind)
	}
	return resp.Payload, nil
}

// Delete удаляет файл с узла
func (c *TCPClient) Delete(ctx context.Context, addr, name string) error {
	resp, err := c.roundTrip(ctx, addr, protocol.Delete{Name: name})
	if err != nil {
		return err
	}
	return ack(resp)
}
