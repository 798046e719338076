package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

type countingLLM struct {
	mu    sync.Mutex
	calls int
}

func (c *countingLLM) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "echo: " + prompt, nil
}

func (c *countingLLM) ModelName() string            { return "counting" }
func (c *countingLLM) Ping(_ context.Context) error { return nil }
func (c *countingLLM) Close() error                 { return nil }

func TestNewRateLimitedLLM_ZeroRateDisables(t *testing.T) {
	inner := &countingLLM{}

	got := NewRateLimitedLLM(inner, 0)

	assert.Same(t, inner, got)
}

func TestNewRateLimitedLLM_NilService(t *testing.T) {
	assert.Nil(t, NewRateLimitedLLM(nil, 5))
}

func TestRateLimitedLLM_Delegates(t *testing.T) {
	inner := &countingLLM{}
	llm := NewRateLimitedLLM(inner, 100)

	out, err := llm.Generate(context.Background(), "hi", driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
	assert.Equal(t, "counting", llm.ModelName())
	assert.NoError(t, llm.Ping(context.Background()))
	assert.NoError(t, llm.Close())
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitedLLM_Throttles(t *testing.T) {
	inner := &countingLLM{}
	llm := NewRateLimitedLLM(inner, 20)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := llm.Generate(context.Background(), "x", driven.GenerateOptions{})
		require.NoError(t, err)
	}

	// Burst of one: the second and third calls each wait ~50ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 3, inner.calls)
}

func TestRateLimitedLLM_ContextCancelled(t *testing.T) {
	inner := &countingLLM{}
	llm := NewRateLimitedLLM(inner, 0.001)

	// Drain the single token.
	_, err := llm.Generate(context.Background(), "first", driven.GenerateOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = llm.Generate(ctx, "second", driven.GenerateOptions{})

	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
