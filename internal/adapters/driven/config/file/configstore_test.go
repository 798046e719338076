package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))
}

func TestNewConfigStore_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
	_, ok := store.Get("llm.provider")
	assert.False(t, ok)
	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "opening must not create the file")
}

func TestNewConfigStore_CreatesDirectoryPrivately(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	_, err := NewConfigStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestNewConfigStore_RejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "not = [valid")

	_, err := NewConfigStore(dir)

	assert.ErrorContains(t, err, "parse")
}

func TestNewConfigStore_CommentOnlyFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "# nothing configured\n")

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	_, ok := store.Get("storage.backend")
	assert.False(t, ok)
}

func TestConfigStore_ReadsNestedTables(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[storage]
backend = "memory"

[synthesis]
max_suggestions = 3
timeout = "45s"

[llm]
rate_per_second = 0.5
`)

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	tests := []struct {
		key  string
		want any
	}{
		{"storage.backend", "memory"},
		{"synthesis.max_suggestions", int64(3)},
		{"synthesis.timeout", "45s"},
		{"llm.rate_per_second", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := store.Get(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := store.Get("synthesis")
	assert.False(t, ok, "a table is not a value")
	_, ok = store.Get("storage.backend.extra")
	assert.False(t, ok)
}

func TestConfigStore_SetPersistsAsTables(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("llm.provider", "ollama"))
	require.NoError(t, store.Set("llm.rate_per_second", 1.5))
	require.NoError(t, store.Set("pipeline.workers", 8))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[llm]")
	assert.Contains(t, string(data), "[pipeline]")

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	provider, _ := reloaded.Get("llm.provider")
	assert.Equal(t, "ollama", provider)
	rate, _ := reloaded.Get("llm.rate_per_second")
	assert.Equal(t, 1.5, rate)
	workers, _ := reloaded.Get("pipeline.workers")
	assert.Equal(t, int64(8), workers)
}

func TestConfigStore_SetKeepsUnrelatedEntries(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[llm]\nmodel = \"llama3\"\n")
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("llm.provider", "ollama"))

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	model, ok := reloaded.Get("llm.model")
	assert.True(t, ok)
	assert.Equal(t, "llama3", model)
}

func TestConfigStore_SetConflicts(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.provider", "openai"))

	err = store.Set("llm", "flat")
	assert.ErrorIs(t, err, ErrKeyConflict)

	err = store.Set("llm.provider.name", "x")
	assert.ErrorIs(t, err, ErrKeyConflict)

	got, _ := store.Get("llm.provider")
	assert.Equal(t, "openai", got)
}

func TestConfigStore_FileIsPrivate(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.api_key", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestConfigStore_ConcurrentSetAndGet(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("pipeline.workers", n)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.Get("pipeline.workers")
		}()
	}
	wg.Wait()

	_, ok := store.Get("pipeline.workers")
	assert.True(t, ok)
}
