package upload

import (
	"context"
	"sync"

	"github.com/covault/covault/internal/common"
)

// Memory is an in-process Staging used by tests and single-node setups.
type Memory struct {
	mu        sync.Mutex
	sessions  map[string]*Staged
	committed map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		sessions:  make(map[string]*Staged),
		committed: make(map[string]bool),
	}
}

// Stage registers a session, replacing any previous one under the same id.
func (m *Memory) Stage(requestID string, files ...StagedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[requestID] = &Staged{RequestID: requestID, Files: files}
}

// Drop removes a session.
func (m *Memory) Drop(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, requestID)
}

func (m *Memory) GetStagedUpload(_ context.Context, requestID string) (*Staged, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[requestID]
	if !ok {
		return nil, ErrNoSession(requestID)
	}
	cp := *s
	cp.Files = append([]StagedFile(nil), s.Files...)
	return &cp, nil
}

func (m *Memory) CommitStagedFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		for _, f := range s.Files {
			if f.FileID == fileID {
				m.committed[fileID] = true
				return nil
			}
		}
	}
	return common.NewError(common.CodeFileDoesNotExist, "staged file %q does not exist", fileID)
}

// Committed reports whether the file was committed.
func (m *Memory) Committed(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed[fileID]
}
