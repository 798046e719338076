package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

//go:embed defaults/*.txt defaults/README.md
var defaults embed.FS

// verbPattern matches fmt verbs, including flags, width and precision.
var verbPattern = regexp.MustCompile(`%[-+# 0]*[0-9]*(?:\.[0-9]+)?[a-zA-Z%]`)

type cachedPrompt struct {
	text    string
	modTime time.Time
	size    int64
}

// PromptStore serves prompt templates from <dir>/<name>.txt, seeding the
// directory with the built-in templates on first use. A file is re-read when
// its size or modification time changes. A file whose fmt verbs differ from
// the built-in template is ignored with a warning.
type PromptStore struct {
	dir string

	seedOnce sync.Once
	seedErr  error

	mu    sync.Mutex
	cache map[string]cachedPrompt
}

// NewPromptStore creates a prompt store rooted at dir, defaulting to
// ~/.kbsynth/prompts. Nothing is written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".kbsynth", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]cachedPrompt)}, nil
}

// Load returns the template registered under name.
func (s *PromptStore) Load(name string) (string, error) {
	builtin, err := builtinPrompt(name)
	if err != nil {
		return "", err
	}

	s.seedOnce.Do(s.seed)
	if s.seedErr != nil {
		logger.Debug("prompt directory unavailable, using built-in %s: %v", name, s.seedErr)
		return builtin, nil
	}

	path := filepath.Join(s.dir, name+".txt")
	info, err := os.Stat(path)
	if err != nil {
		return builtin, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[name]; ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.text, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return builtin, nil
	}
	text := strings.TrimSpace(string(raw))
	if !slices.Equal(verbs(text), verbs(builtin)) {
		logger.Warn("prompt %s has placeholders %v, want %v; using built-in template",
			path, verbs(text), verbs(builtin))
		text = builtin
	}
	s.cache[name] = cachedPrompt{text: text, modTime: info.ModTime(), size: info.Size()}
	return text, nil
}

// Reload drops every cached template.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// seed creates the directory and copies in any built-in file that is missing.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		s.seedErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	entries, err := defaults.ReadDir("defaults")
	if err != nil {
		s.seedErr = err
		return
	}
	for _, e := range entries {
		target := filepath.Join(s.dir, e.Name())
		if _, err := os.Stat(target); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		data, err := defaults.ReadFile("defaults/" + e.Name())
		if err != nil {
			s.seedErr = err
			return
		}
		if err := os.WriteFile(target, data, 0600); err != nil {
			s.seedErr = fmt.Errorf("write default %s: %w", e.Name(), err)
			return
		}
	}
}

func builtinPrompt(name string) (string, error) {
	data, err := defaults.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return strings.TrimSpace(string(data)), nil
}

// verbs lists the fmt verbs of tmpl in order, ignoring literal percent signs.
func verbs(tmpl string) []string {
	var out []string
	for _, v := range verbPattern.FindAllString(tmpl, -1) {
		if v != "%%" {
			out = append(out, v)
		}
	}
	return out
}
