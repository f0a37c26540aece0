package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind вид ответа
type Kind string

const (
	KindPayload Kind = "payload"
	KindNames   Kind = "names"
)

var (
	statusOK  = []byte("OK")
	statusErr = []byte("ERR")
)

// Response ответ узла: либо сырые байты, либо список имен
type Response struct {
	Kind    Kind     `json:"kind"`
	Payload []byte   `json:"payload,omitempty"`
	Names   []string `json:"names,omitempty"`
}

// OK подтверждение upload/delete
func OK() Response {
	return Response{Kind: KindPayload, Payload: statusOK}
}

// Fail единственный признак ошибки, который уходит по сети
func Fail() Response {
	return Response{Kind: KindPayload, Payload: statusErr}
}

// Content ответ на download. Пустой payload означает "не найден".
func Content(data []byte) Response {
	return Response{Kind: KindPayload, Payload: data}
}

// Names ответ на list
func Names(names []string) Response {
	if names == nil {
		names = []string{}
	}
	return Response{Kind: KindNames, Names: names}
}

// IsOK проверяет, что ответ является подтверждением
func (r Response) IsOK() bool {
	return r.Kind == KindPayload && bytes.Equal(r.Payload, statusOK)
}

// MarshalResponse кодирует ответ в тело кадра
func MarshalResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// UnmarshalResponse разбирает тело кадра
func UnmarshalResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	switch resp.Kind {
	case KindPayload, KindNames:
		return resp, nil
	default:
		return Response{}, fmt.Errorf("%q: %w", resp.Kind, ErrBadKind)
	}
}
