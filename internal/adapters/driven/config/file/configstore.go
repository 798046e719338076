package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ErrKeyConflict is returned when a dotted key would turn a table into a
// value or a value into a table.
var ErrKeyConflict = errors.New("config key conflicts with existing entry")

// ConfigStore keeps settings in a TOML document. A dotted key such as
// "llm.provider" addresses the provider entry of the [llm] table.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	tree map[string]any
}

// NewConfigStore opens config.toml in configDir, defaulting to ~/.kbsynth.
// A missing file is an empty configuration.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home directory: %w", err)
		}
		configDir = filepath.Join(home, ".kbsynth")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	s := &ConfigStore{path: filepath.Join(configDir, "config.toml"), tree: map[string]any{}}
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := toml.Unmarshal(raw, &s.tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if s.tree == nil {
		s.tree = map[string]any{}
	}
	return s, nil
}

// Get returns the value at key. Tables are not values.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, leaf, ok := s.walk(key, false)
	if !ok {
		return nil, false
	}
	v, ok := table[leaf]
	if _, isTable := v.(map[string]any); isTable {
		return nil, false
	}
	return v, ok
}

// Set stores value at key and rewrites the file. On a write failure the
// previous value is restored.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, leaf, ok := s.walk(key, true)
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyConflict, key)
	}
	old, existed := table[leaf]
	if _, isTable := old.(map[string]any); isTable {
		return fmt.Errorf("%w: %s is a table", ErrKeyConflict, key)
	}

	table[leaf] = value
	if err := s.write(); err != nil {
		if existed {
			table[leaf] = old
		} else {
			delete(table, leaf)
		}
		return err
	}
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// walk descends to the table holding the last segment of key. With create
// set, missing tables are added on the way.
func (s *ConfigStore) walk(key string, create bool) (map[string]any, string, bool) {
	parts := strings.Split(key, ".")
	table := s.tree
	for _, part := range parts[:len(parts)-1] {
		next, exists := table[part]
		if !exists {
			if !create {
				return nil, "", false
			}
			child := map[string]any{}
			table[part] = child
			table = child
			continue
		}
		child, isTable := next.(map[string]any)
		if !isTable {
			return nil, "", false
		}
		table = child
	}
	return table, parts[len(parts)-1], true
}

// write replaces the file through a rename so readers never see a partial
// document.
func (s *ConfigStore) write() error {
	data, err := toml.Marshal(s.tree)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
