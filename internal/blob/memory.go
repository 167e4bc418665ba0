package blob

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/covault/covault/internal/common"
)

// Memory is an in-process Storage used by tests.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, fileID string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileID] = data
	return nil
}

func (m *Memory) ReadRange(_ context.Context, fileID string, rng Range) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[fileID]
	if !ok {
		return nil, common.NewError(common.CodeFileDoesNotExist, "file %q does not exist", fileID)
	}
	start := rng.Offset
	if start > int64(len(data)) {
		start = int64(len(data))
	}
	end := int64(len(data))
	if rng.Length > 0 && start+rng.Length < end {
		end = start + rng.Length
	}
	return io.NopCloser(bytes.NewReader(data[start:end])), nil
}

func (m *Memory) Delete(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, fileID)
	return nil
}

// Exists reports whether the file is stored.
func (m *Memory) Exists(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[fileID]
	return ok
}

// Len counts stored files.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
