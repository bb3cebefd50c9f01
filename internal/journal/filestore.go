package journal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore — референсный бэкенд журнала: один JSONL-файл на transaction_id.
// Запись идет одним системным вызовом write в файл, открытый с O_APPEND,
// поэтому одна запись либо попадает в файл целиком, либо не попадает вовсе.
type FileStore struct {
	dir string
	ext string
}

func NewFileStore(dir, ext string) (*FileStore, error) {
	if ext == "" {
		ext = ".jsonl"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create log directory: %w", err)
	}
	return &FileStore{dir: dir, ext: ext}, nil
}

func (s *FileStore) path(transactionID string) (string, error) {
	// transaction_id приходит снаружи — не даем ему выйти из каталога журнала
	if transactionID == "" || strings.ContainsAny(transactionID, `/\`) || strings.Contains(transactionID, "..") {
		return "", fmt.Errorf("journal: unsafe transaction id %q", transactionID)
	}
	return filepath.Join(s.dir, transactionID+s.ext), nil
}

func (s *FileStore) Append(ctx context.Context, transactionID string, record []byte) error {
	p, err := s.path(transactionID)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", p, err)
	}
	defer f.Close()

	line := make([]byte, 0, len(record)+1)
	line = append(line, record...)
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("journal: append to %s: %w", p, err)
	}
	return nil
}

func (s *FileStore) ReadAll(ctx context.Context, transactionID string) ([][]byte, error) {
	p, err := s.path(transactionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			// Отсутствие журнала — нормальный представимый случай, не ошибка
			return nil, nil
		}
		return nil, fmt.Errorf("journal: read %s: %w", p, err)
	}

	var records [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		records = append(records, line)
	}
	return records, nil
}
