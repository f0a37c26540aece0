package utils

import (
	"errors"
	"strings"
)

// TempPrefix префикс временных файлов узла; такие имена не загружаются при старте
const TempPrefix = ".upload-"

var ErrInvalidFilename = errors.New("invalid filename")

// ValidateFilename проверяет, что имя файла лежит прямо в папке узла
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidFilename
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return ErrInvalidFilename
	case strings.HasPrefix(name, TempPrefix):
		return ErrInvalidFilename
	}
	return nil
}
