package metastore

import (
	"errors"
	"time"
)

// Операции, которые попадают в журнал
const (
	OpUpload    = "upload"
	OpDeleteAll = "delete-all"
	OpDeleteOne = "delete-one"
)

// OutcomeOK результат узла, принявшего операцию
const OutcomeOK = "ok"

var ErrRecordNotFound = errors.New("record not found")

// FanoutRecord содержит итог одной операции записи по узлам
type FanoutRecord struct {
	ID       string         `json:"id"`                 // UUID записи
	Op       string         `json:"op"`                 // upload, delete-all, delete-one
	Filename string         `json:"filename"`           // Имя файла
	Size     int            `json:"size,omitempty"`     // Размер содержимого для upload
	Checksum string         `json:"checksum,omitempty"` // SHA-256 содержимого для upload
	Nodes    map[int]string `json:"nodes"`              // Узел -> "ok" или текст ошибки
	At       time.Time      `json:"at"`                 // Время операции
}

// Succeeded возвращает число узлов, принявших операцию
func (r FanoutRecord) Succeeded() int {
	n := 0
	for _, outcome := range r.Nodes {
		if outcome == OutcomeOK {
			n++
		}
	}
	return n
}

// MetaStore интерфейс журнала операций
type MetaStore interface {
	// Record сохраняет запись; пустой ID заполняется
	Record(rec *FanoutRecord) error

	// Get возвращает запись по ID
	Get(id string) (*FanoutRecord, error)

	// History возвращает записи по имени файла, от старых к новым
	History(filename string) ([]FanoutRecord, error)

	// Close закрывает хранилище
	Close() error
}
