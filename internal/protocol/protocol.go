// internal/protocol/protocol.go
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Action имя операции в конверте запроса
type Action string

const (
	ActionUpload   Action = "upload"
	ActionList     Action = "list"
	ActionDownload Action = "download"
	ActionDelete   Action = "delete"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingField  = errors.New("missing required field")
	ErrUnexpected    = errors.New("field not allowed for action")
	ErrBadKind       = errors.New("unknown response kind")
)

// Request один из вариантов: Upload, List, Download, Delete
type Request interface {
	Action() Action
}

// Upload записывает файл на узел целиком (перезапись)
type Upload struct {
	Name    string
	Content []byte
}

// List запрашивает имена файлов узла
type List struct{}

// Download запрашивает содержимое файла
type Download struct {
	Name string
}

// Delete удаляет файл с узла
type Delete struct {
	Name string
}

func (Upload) Action() Action   { return ActionUpload }
func (List) Action() Action     { return ActionList }
func (Download) Action() Action { return ActionDownload }
func (Delete) Action() Action   { return ActionDelete }

// envelope то, что реально передается по сети
type envelope struct {
	Action   Action  `json:"action"`
	Filename *string `json:"filename,omitempty"`
	Content  []byte  `json:"content,omitempty"`
}

// MarshalRequest кодирует запрос в тело кадра
func MarshalRequest(req Request) ([]byte, error) {
	var env envelope
	switch r := req.(type) {
	case Upload:
		// пустое содержимое опускается omitempty, на приеме это снова пустой файл
		env = envelope{Action: ActionUpload, Filename: &r.Name, Content: r.Content}
	case List:
		env = envelope{Action: ActionList}
	case Download:
		env = envelope{Action: ActionDownload, Filename: &r.Name}
	case Delete:
		env = envelope{Action: ActionDelete, Filename: &r.Name}
	default:
		return nil, fmt.Errorf("marshal request %T: %w", req, ErrUnknownAction)
	}
	return json.Marshal(env)
}

// UnmarshalRequest разбирает тело кадра в конкретный вариант запроса.
// Все, что не совпадает ни с одним вариантом, отклоняется.
func UnmarshalRequest(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	switch env.Action {
	case ActionUpload:
		if env.Filename == nil {
			return nil, fmt.Errorf("upload: filename: %w", ErrMissingField)
		}
		return Upload{Name: *env.Filename, Content: env.Content}, nil
	case ActionList:
		if env.Filename != nil || env.Content != nil {
			return nil, fmt.Errorf("list: %w", ErrUnexpected)
		}
		return List{}, nil
	case ActionDownload, ActionDelete:
		if env.Filename == nil {
			return nil, fmt.Errorf("%s: filename: %w", env.Action, ErrMissingField)
		}
		if env.Content != nil {
			return nil, fmt.Errorf("%s: content: %w", env.Action, ErrUnexpected)
		}
		if env.Action == ActionDownload {
			return Download{Name: *env.Filename}, nil
		}
		return Delete{Name: *env.Filename}, nil
	default:
		return nil, fmt.Errorf("%q: %w", env.Action, ErrUnknownAction)
	}
}
