// Package checkpoint persists resume state between process runs.
//
// A checkpoint holds the ResumeState of one logical stream after its most
// recent physical attempt. A later run seeds its resume hints from it, so a
// restarted client continues where the previous one stopped. Checkpoints are
// deleted once a stream completes.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/downlink/types"
)

// fileExt is the suffix of checkpoint files.
const fileExt = ".ckpt"

// Store loads and saves resume state by key.
// Implementations must be safe for concurrent use with distinct keys.
type Store interface {
	// Load returns the saved state. ok is false when no checkpoint exists.
	Load(key string) (state types.ResumeState, ok bool, err error)
	// Save replaces the checkpoint for key.
	Save(key string, state types.ResumeState) error
	// Delete removes the checkpoint for key. Deleting a missing key is not an error.
	Delete(key string) error
}

// record is the persisted shape. Version guards future layout changes.
type record struct {
	Version int               `msgpack:"v"`
	Key     string            `msgpack:"key"`
	State   types.ResumeState `msgpack:"state"`
}

const recordVersion = 1

// FileStore keeps one msgpack file per key under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("checkpoint: key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("checkpoint: invalid key %q", key)
	}
	return nil
}

// Load reads the checkpoint for key.
func (s *FileStore) Load(key string) (types.ResumeState, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return types.ResumeState{}, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.ResumeState{}, false, nil
	}
	if err != nil {
		return types.ResumeState{}, false, fmt.Errorf("checkpoint: read %s: %w", key, err)
	}

	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return types.ResumeState{}, false, fmt.Errorf("checkpoint: decode %s: %w", key, err)
	}
	if rec.Version != recordVersion {
		return types.ResumeState{}, false, fmt.Errorf("checkpoint: %s has unsupported version %d", key, rec.Version)
	}
	return rec.State, true, nil
}

// Save writes the checkpoint atomically: a temp file in the same directory
// is renamed over the old one.
func (s *FileStore) Save(key string, state types.ResumeState) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(&record{Version: recordVersion, Key: key, State: state})
	if err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("checkpoint: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("checkpoint: sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("checkpoint: rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the checkpoint for key.
func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: delete %s: %w", key, err)
	}
	return nil
}

// MemoryStore keeps checkpoints in memory for the lifetime of the process.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]types.ResumeState
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]types.ResumeState)}
}

// Load returns the saved state for key.
func (s *MemoryStore) Load(key string) (types.ResumeState, bool, error) {
	if err := validateKey(key); err != nil {
		return types.ResumeState{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	return state, ok, nil
}

// Save stores state for key.
func (s *MemoryStore) Save(key string, state types.ResumeState) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// Verify implementations satisfy Store.
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
