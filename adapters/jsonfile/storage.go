package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"hanziquest/adapters/memory"
	"hanziquest/core"
	"hanziquest/engine"
)

// Store persists every learner to a single JSON file, rewritten on each commit.
// Suitable for demos and small deployments.
type Store struct {
	*memory.Store

	path string
	mu   sync.Mutex
	data map[core.LearnerID]*memory.LearnerData
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.LearnerID]*memory.LearnerData{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	s.Store = memory.New(memory.WithCommitHook(s.commit))
	s.Store.Restore(s.data)
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]*memory.LearnerData
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for k, v := range raw {
		s.data[core.LearnerID(k)] = v
	}
	return nil
}

// commit runs with the learner locked. A failed write leaves both the file and
// the in-memory copy as they were.
func (s *Store) commit(learner core.LearnerID, d *memory.LearnerData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[learner]
	s.data[learner] = d
	if err := s.persist(); err != nil {
		if had {
			s.data[learner] = prev
		} else {
			delete(s.data, learner)
		}
		return err
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]*memory.LearnerData, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ engine.Store = (*Store)(nil)
