package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"orderScope/internal/model"
)

// OrderExport streams orders into a JSONL file. Lines go to a temporary file
// next to the target; the target path only changes on Commit.
type OrderExport struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	count int
}

// CreateOrderExport prepares an export to path, creating parent directories.
func CreateOrderExport(path string) (*OrderExport, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	file, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &OrderExport{
		path: path,
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
	}, nil
}

// Write appends one JSON line per order.
func (e *OrderExport) Write(orders []model.Order) error {
	for _, order := range orders {
		if err := e.enc.Encode(order); err != nil {
			return fmt.Errorf("write order %d/%s: %w", order.ChainID, order.OrderID, err)
		}
		e.count++
	}
	return nil
}

// Count is the number of orders written so far.
func (e *OrderExport) Count() int {
	return e.count
}

// Commit flushes the export and moves it into place.
func (e *OrderExport) Commit() error {
	if err := e.buf.Flush(); err != nil {
		e.Abort()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := e.file.Sync(); err != nil {
		e.Abort()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := e.file.Close(); err != nil {
		os.Remove(e.file.Name())
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(e.file.Name(), e.path); err != nil {
		os.Remove(e.file.Name())
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// Abort discards the temporary file. The target path is left untouched.
func (e *OrderExport) Abort() {
	e.file.Close()
	os.Remove(e.file.Name())
}
