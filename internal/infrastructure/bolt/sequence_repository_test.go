package bolt_test

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/bolt"
)

var nfceKey = entity.SequenceKey{IssuerID: "issuer-1", Series: 1, Model: entity.ModelNFCe}

func openRepo(t *testing.T, path string) *bolt.SequenceRepo {
	t.Helper()
	repo, err := bolt.Open(path)
	require.NoError(t, err)
	return repo
}

func TestBoltSequence_ConcurrenteSinDuplicados(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "seq.db"))
	defer repo.Close()
	ctx := context.Background()

	const workers = 50
	var mu sync.Mutex
	var got []int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Next(ctx, nfceKey)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, workers)
	for i, n := range got {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestBoltSequence_PersisteEntreAperturas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.db")
	ctx := context.Background()

	repo := openRepo(t, path)
	for i := 0; i < 3; i++ {
		_, err := repo.Next(ctx, nfceKey)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	repo = openRepo(t, path)
	defer repo.Close()
	cur, err := repo.Current(ctx, nfceKey)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cur)

	n, err := repo.Next(ctx, nfceKey)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "el contador nunca retrocede tras reabrir")
}

func TestBoltSequence_SeedYClavesIndependientes(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "seq.db"))
	defer repo.Close()
	ctx := context.Background()
	nfeKey := entity.SequenceKey{IssuerID: "issuer-1", Series: 1, Model: entity.ModelNFe}

	require.NoError(t, repo.Seed(ctx, nfeKey, 1200))
	require.NoError(t, repo.Seed(ctx, nfeKey, 1), "un segundo seed no pisa el contador")

	n, err := repo.Next(ctx, nfeKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1201), n)

	n, err = repo.Next(ctx, nfceKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "NFC-e tiene su propio contador")

	cur, err := repo.Current(ctx, entity.SequenceKey{IssuerID: "otro", Series: 1, Model: entity.ModelNFCe})
	require.NoError(t, err)
	assert.Zero(t, cur)

	assert.Error(t, repo.Seed(ctx, nfeKey, -1))
}

func TestBoltSequence_ContextoCancelado(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "seq.db"))
	defer repo.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Next(ctx, nfceKey)
	assert.ErrorIs(t, err, context.Canceled)
}
