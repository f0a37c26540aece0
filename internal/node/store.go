// internal/node/store.go
package node

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Gammanik/replistore/internal/utils"
)

// fileTable таблица файлов узла в памяти, зеркало папки на диске.
// Один мьютекс на узел.
type fileTable struct {
	mu    sync.Mutex
	dir   string
	files map[string][]byte
}

// loadTable читает все обычные файлы папки в память
func loadTable(dir string) (*fileTable, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read storage directory: %w", err)
	}

	t := &fileTable{dir: dir, files: make(map[string][]byte, len(entries))}
	for _, entry := range entries {
		// Пропускаем подпапки и недописанные временные файлы
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), utils.TempPrefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			// Нечитаемый файл просто не попадает в таблицу
			continue
		}
		t.files[entry.Name()] = data
	}
	return t, nil
}

// put перезаписывает файл в памяти и на диске.
// Если запись на диск упала, таблица уже изменена: окно рассогласования до рестарта.
func (t *fileTable) put(name string, content []byte) error {
	if err := utils.ValidateFilename(name); err != nil {
		return err
	}

	data := make([]byte, len(content))
	copy(data, content)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.files[name] = data
	return t.persist(name, data)
}

// persist пишет во временный файл и переименовывает его
func (t *fileTable) persist(name string, data []byte) error {
	tmp, err := os.CreateTemp(t.dir, utils.TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(t.dir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// get возвращает содержимое файла
func (t *fileTable) get(name string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, ok := t.files[name]
	return data, ok
}

// remove удаляет файл из таблицы и, по возможности, с диска.
// Ошибка удаления с диска не отменяет удаление из памяти.
func (t *fileTable) remove(name string) (existed bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.files[name]; !ok {
		return false, nil
	}
	delete(t.files, name)

	if utils.ValidateFilename(name) != nil {
		return true, nil
	}
	if err := os.Remove(filepath.Join(t.dir, name)); err != nil && !os.IsNotExist(err) {
		return true, err
	}
	return true, nil
}

// names возвращает отсортированный список имен
func (t *fileTable) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *fileTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}
