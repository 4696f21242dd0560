package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown artifact IDs.
var ErrNotFound = errors.New("artifact not found")

// Artifact describes a stored input or generated file.
type Artifact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps artifacts handed to or produced by the server.
type Store interface {
	Save(name string, r io.Reader) (*Artifact, error)
	Get(id string) (*Artifact, error)
	Read(id string) ([]byte, error)
	List(limit int) ([]*Artifact, error)
	Delete(id string) error
}

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	mu       sync.RWMutex
	dir      string
	maxBytes int64
	files    map[string]*Artifact
}

// NewLocalStore creates the directory if needed. Artifacts larger than
// maxBytes are refused; zero disables the bound.
func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &LocalStore{
		dir:      dir,
		maxBytes: maxBytes,
		files:    make(map[string]*Artifact),
	}, nil
}

// Dir returns the directory holding the artifacts.
func (s *LocalStore) Dir() string { return s.dir }

// Save copies r into a new artifact. The file appears atomically.
func (s *LocalStore) Save(name string, r io.Reader) (*Artifact, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	size, err := writeAtomic(path, 0644, func(w io.Writer) (int64, error) {
		return copyBounded(w, r, s.maxBytes, name)
	})
	if err != nil {
		return nil, err
	}

	a := &Artifact{ID: id, Name: name, Size: size, CreatedAt: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = a
	return a, nil
}

// Get retrieves artifact metadata by ID.
func (s *LocalStore) Get(id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Read returns the content of an artifact.
func (s *LocalStore) Read(id string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return ReadFile(filepath.Join(s.dir, id), s.maxBytes)
}

// List returns the most recent artifacts, newest first.
func (s *LocalStore) List(limit int) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Artifact, 0, len(s.files))
	for _, a := range s.files {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes an artifact.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.Remove(filepath.Join(s.dir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	delete(s.files, id)
	return nil
}

var _ Store = (*LocalStore)(nil)
