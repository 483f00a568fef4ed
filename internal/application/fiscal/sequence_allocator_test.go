package fiscal_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/memory"
)

// flakyStore falla las primeras fails llamadas y luego delega en el contador en memoria.
type flakyStore struct {
	*memory.SequenceStore
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakyStore) Next(ctx context.Context, key entity.SequenceKey) (int64, error) {
	s.mu.Lock()
	s.calls++
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return 0, errors.New("connection refused")
	}
	s.mu.Unlock()
	return s.SequenceStore.Next(ctx, key)
}

func TestSequenceAllocator_ConcurrenciaSinDuplicadosNiHuecos(t *testing.T) {
	alloc := fiscal.NewSequenceAllocator(memory.NewSequenceStore(), fiscal.AllocatorConfig{Backend: "memory"}, nil, zerolog.Nop())

	const n = 200
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			num, err := alloc.NextNumber(context.Background(), "issuer-1", 1, entity.ModelNFCe)
			assert.NoError(t, err)
			results[i] = num
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, num := range results {
		assert.False(t, seen[num], "número %d entregado dos veces", num)
		seen[num] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "hueco en el número %d", i)
	}

	last, err := alloc.Current(context.Background(), "issuer-1", 1, entity.ModelNFCe)
	require.NoError(t, err)
	assert.Equal(t, int64(n), last)
}

func TestSequenceAllocator_ContadoresIndependientes(t *testing.T) {
	alloc := fiscal.NewSequenceAllocator(memory.NewSequenceStore(), fiscal.AllocatorConfig{}, nil, zerolog.Nop())
	ctx := context.Background()

	a, err := alloc.NextNumber(ctx, "issuer-1", 1, entity.ModelNFCe)
	require.NoError(t, err)
	b, err := alloc.NextNumber(ctx, "issuer-1", 2, entity.ModelNFCe)
	require.NoError(t, err)
	c, err := alloc.NextNumber(ctx, "issuer-1", 1, entity.ModelNFe)
	require.NoError(t, err)
	d, err := alloc.NextNumber(ctx, "issuer-1", 1, entity.ModelNFCe)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 1, 1, 2}, []int64{a, b, c, d})
}

func TestSequenceAllocator_ReintentaElMismoIncremento(t *testing.T) {
	store := &flakyStore{SequenceStore: memory.NewSequenceStore(), fails: 2}
	alloc := fiscal.NewSequenceAllocator(store, fiscal.AllocatorConfig{Backend: "test", Retries: 2}, nil, zerolog.Nop())

	n, err := alloc.NextNumber(context.Background(), "issuer-1", 1, entity.ModelNFCe)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "los intentos fallidos no consumen números")
	assert.Equal(t, 3, store.calls)
}

func TestSequenceAllocator_AlmacenNoDisponible(t *testing.T) {
	store := &flakyStore{SequenceStore: memory.NewSequenceStore(), fails: 10}
	alloc := fiscal.NewSequenceAllocator(store, fiscal.AllocatorConfig{Backend: "test", Retries: 2}, nil, zerolog.Nop())

	n, err := alloc.NextNumber(context.Background(), "issuer-1", 1, entity.ModelNFCe)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, domain.ErrSequenceUnavailable), "error: %v", err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 3, store.calls, "primer intento + 2 reintentos")
}

func TestSequenceAllocator_ContextoCancelado(t *testing.T) {
	store := &flakyStore{SequenceStore: memory.NewSequenceStore(), fails: 10}
	alloc := fiscal.NewSequenceAllocator(store, fiscal.AllocatorConfig{Retries: 5, Backoff: 1}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := alloc.NextNumber(ctx, "issuer-1", 1, entity.ModelNFCe)
	assert.ErrorIs(t, err, domain.ErrSequenceUnavailable)
	assert.Equal(t, 1, store.calls, "con el contexto cancelado no se reintenta")
}
