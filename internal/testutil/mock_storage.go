// mock_storage.go - In-memory artifact store for handler tests
package testutil

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/plc-visualizer/plcforge/internal/storage"
)

// MockStorage implements storage.Store in memory.
type MockStorage struct {
	mu    sync.RWMutex
	files map[string]*storage.Artifact
	data  map[string][]byte
	seq   int
}

// NewMockStorage creates an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files: make(map[string]*storage.Artifact),
		data:  make(map[string][]byte),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*storage.Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.AddFile(name, data), nil
}

func (m *MockStorage) Get(id string) (*storage.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return a, nil
}

func (m *MockStorage) Read(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return data, nil
}

func (m *MockStorage) List(limit int) ([]*storage.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*storage.Artifact
	for _, a := range m.files {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	delete(m.files, id)
	delete(m.data, id)
	return nil
}

var _ storage.Store = (*MockStorage)(nil)

// AddFile stores data under a sequential test ID.
func (m *MockStorage) AddFile(name string, data []byte) *storage.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	a := &storage.Artifact{
		ID:        fmt.Sprintf("test-id-%03d", m.seq),
		Name:      name,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}
	m.files[a.ID] = a
	m.data[a.ID] = data
	return a
}

// Count returns the number of stored artifacts.
func (m *MockStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
