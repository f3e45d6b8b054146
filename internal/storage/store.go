// Package storage хранит состояние между циклами в JSON-файлах с атомарной
// заменой и пишет необязательную историю в InfluxDB.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/pkg/logger"
)

// ErrCorrupt файл состояния не читается или не проходит проверку схемы
var ErrCorrupt = errors.New("поврежденный файл состояния")

var validate = validator.New()

// Store JSON-снимок одного значения в одном файле
type Store[T any] struct {
	path  string
	empty func() T
	check func(T) error
}

// NewStore создает хранилище; empty дает значение по умолчанию, check проверяет схему
func NewStore[T any](path string, empty func() T, check func(T) error) *Store[T] {
	return &Store[T]{path: path, empty: empty, check: check}
}

// Path путь к файлу
func (s *Store[T]) Path() string { return s.path }

// Load читает снимок. Отсутствующий файл дает пустое значение без ошибки.
// Поврежденный файл переименовывается в <file>.corrupt, возвращается пустое
// значение и ошибка, обернутая в ErrCorrupt.
func (s *Store[T]) Load() (T, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.empty(), nil
	}
	if err != nil {
		return s.empty(), fmt.Errorf("ошибка чтения %s: %w", s.path, err)
	}

	v := s.empty()
	if err := json.Unmarshal(data, &v); err != nil {
		return s.quarantine(err)
	}
	if s.check != nil {
		if err := s.check(v); err != nil {
			return s.quarantine(err)
		}
	}
	return v, nil
}

func (s *Store[T]) quarantine(cause error) (T, error) {
	backup := s.path + ".corrupt"
	if err := os.Rename(s.path, backup); err != nil {
		logger.Error("Не удалось отложить поврежденный файл", zap.String("path", s.path), zap.Error(err))
	}
	logger.Error("Файл состояния поврежден, начинаем с пустого",
		zap.String("path", s.path),
		zap.String("backup", backup),
		zap.Error(cause))
	return s.empty(), fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, cause)
}

// Save записывает снимок через временный файл и rename
func (s *Store[T]) Save(v T) error {
	if s.check != nil {
		if err := s.check(v); err != nil {
			return fmt.Errorf("состояние не прошло проверку: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка записи %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("ошибка замены %s: %w", s.path, err)
	}
	return nil
}
