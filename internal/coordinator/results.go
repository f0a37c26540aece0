package coordinator

import (
	"errors"
	"sort"

	"github.com/Gammanik/replistore/internal/storage"
)

// Results итог операции по узлам: ID узла -> ошибка (nil - успех)
type Results map[int]error

// OK проверяет, что узел принял операцию
func (r Results) OK(nodeID int) bool {
	err, ok := r[nodeID]
	return ok && err == nil
}

// Succeeded ID узлов, принявших операцию, по возрастанию
func (r Results) Succeeded() []int {
	return r.filter(true)
}

// Failed ID узлов, не принявших операцию, по возрастанию
func (r Results) Failed() []int {
	return r.filter(false)
}

func (r Results) filter(success bool) []int {
	ids := []int{}
	for id, err := range r {
		if (err == nil) == success {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Listing результат ListUnion
type Listing struct {
	Files []string     // объединение имен по ответившим узлам
	Alive map[int]bool // узел ответил на list
}

// Outcome короткая метка результата вызова узла
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, storage.ErrRejected):
		return "rejected"
	case errors.Is(err, storage.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
