// File: internal/entity/resolver_test.go
package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/models"
)

// catalogStore serves a fixed entity list and can be flipped to fail
type catalogStore struct {
	entities []*models.EntityRecord
	fail     bool
}

func (s *catalogStore) LoadEntities(_ context.Context) ([]*models.EntityRecord, error) {
	if s.fail {
		return nil, errors.New("catalog unavailable")
	}
	return s.entities, nil
}

func testCatalog() []*models.EntityRecord {
	return []*models.EntityRecord{
		{
			EntityID:   "ex-1",
			EntityName: "Coinbase",
			Kind:       models.EntityKindExchange,
			Addresses:  []string{"bc1qcoinbase1", "bc1qcoinbase2"},
		},
		{
			EntityID:     "pool-1",
			EntityName:   "Foundry USA",
			Kind:         models.EntityKindMiningPool,
			CoinbaseTags: []string{"Foundry"},
		},
	}
}

func TestResolverResolvesKnownAddress(t *testing.T) {
	r, err := NewResolver(context.Background(), &catalogStore{entities: testCatalog()}, time.Hour)
	require.NoError(t, err)

	rec := r.Resolve("bc1qcoinbase2")
	assert.Equal(t, "Coinbase", rec.EntityName)
	assert.Equal(t, models.EntityKindExchange, rec.Kind)
	assert.False(t, rec.IsUnknown())
}

func TestResolverUnknownSentinel(t *testing.T) {
	r, err := NewResolver(context.Background(), &catalogStore{entities: testCatalog()}, time.Hour)
	require.NoError(t, err)

	rec := r.Resolve("bc1qstranger")
	require.NotNil(t, rec, "lookups never return nil")
	assert.True(t, rec.IsUnknown())
	assert.Equal(t, models.EntityKindUnknown, rec.Kind)
}

func TestResolverCoinbaseTagIsCaseInsensitive(t *testing.T) {
	r, err := NewResolver(context.Background(), &catalogStore{entities: testCatalog()}, time.Hour)
	require.NoError(t, err)

	rec := r.ResolveCoinbase("/FOUNDRY usa pool/")
	assert.Equal(t, "Foundry USA", rec.EntityName)

	assert.True(t, r.ResolveCoinbase("/unbranded/").IsUnknown())
}

func TestResolverFailedReloadKeepsSnapshot(t *testing.T) {
	store := &catalogStore{entities: testCatalog()}
	r, err := NewResolver(context.Background(), store, time.Hour)
	require.NoError(t, err)
	loadedAt := r.LoadedAt()

	store.fail = true
	r.Reload(context.Background())

	// The previous snapshot still serves lookups
	assert.Equal(t, "Coinbase", r.Resolve("bc1qcoinbase1").EntityName)
	assert.Equal(t, loadedAt, r.LoadedAt())

	store.fail = false
	store.entities = append(store.entities, &models.EntityRecord{
		EntityID:   "ex-2",
		EntityName: "Kraken",
		Kind:       models.EntityKindExchange,
		Addresses:  []string{"bc1qkraken"},
	})
	r.Reload(context.Background())

	assert.Equal(t, "Kraken", r.Resolve("bc1qkraken").EntityName)
	assert.True(t, r.LoadedAt().After(loadedAt))
}

func TestResolverInitialLoadFailure(t *testing.T) {
	_, err := NewResolver(context.Background(), &catalogStore{fail: true}, time.Hour)
	assert.Error(t, err)
}

func TestResolverEntitiesOfKind(t *testing.T) {
	r, err := NewResolver(context.Background(), &catalogStore{entities: testCatalog()}, time.Hour)
	require.NoError(t, err)

	exchanges := r.EntitiesOfKind(models.EntityKindExchange)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "Coinbase", exchanges[0].EntityName)
	assert.Empty(t, r.EntitiesOfKind(models.EntityKindTreasuryCompany))
}
