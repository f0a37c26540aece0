package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize предел одного кадра (10 MiB). Содержимое в JSON идет
// в base64, поэтому реальный предел для файла около 7.5 MiB.
const MaxMessageSize = 10 << 20

const headerSize = 4

var ErrFrameTooLarge = errors.New("frame exceeds max message size")

// WriteFrame пишет тело с 4-байтовым префиксом длины (big endian)
func WriteFrame(w io.Writer, body []byte, max int) error {
	if max <= 0 {
		max = MaxMessageSize
	}
	if len(body) > max {
		return fmt.Errorf("write %d bytes: %w", len(body), ErrFrameTooLarge)
	}

	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)

	_, err := w.Write(buf)
	return err
}

// ReadFrame читает один кадр. Кадр длиннее max не читается вообще.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = MaxMessageSize
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(max) {
		return nil, fmt.Errorf("read %d bytes: %w", size, ErrFrameTooLarge)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// WriteRequest кодирует и отправляет запрос одним кадром
func WriteRequest(w io.Writer, req Request, max int) error {
	body, err := MarshalRequest(req)
	if err != nil {
		return err
	}
	return WriteFrame(w, body, max)
}

// ReadRequest читает и проверяет запрос
func ReadRequest(r io.Reader, max int) (Request, error) {
	body, err := ReadFrame(r, max)
	if err != nil {
		return nil, err
	}
	return UnmarshalRequest(body)
}

// WriteResponse кодирует и отправляет ответ одним кадром
func WriteResponse(w io.Writer, resp Response, max int) error {
	body, err := MarshalResponse(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, body, max)
}

// ReadResponse читает ответ
func ReadResponse(r io.Reader, max int) (Response, error) {
	body, err := ReadFrame(r, max)
	if err != nil {
		return Response{}, err
	}
	return UnmarshalResponse(body)
}
