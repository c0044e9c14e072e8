// File: internal/entity/resolver.go
package entity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// Store is the external entity catalog the resolver loads in bulk
type Store interface {
	LoadEntities(ctx context.Context) ([]*models.EntityRecord, error)
}

// snapshot is an immutable view of the entity catalog. Built once per
// reload, never mutated after publication.
type snapshot struct {
	byAddress     map[string]*models.EntityRecord
	byCoinbaseTag map[string]*models.EntityRecord
	records       []*models.EntityRecord
	loadedAt      time.Time
}

// Resolver maps addresses and coinbase scripts to known entities.
// Lookups never fail; a miss resolves to the unknown sentinel.
type Resolver struct {
	store    Store
	logger   *logrus.Logger
	interval time.Duration

	current  atomic.Pointer[snapshot]
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewResolver creates a resolver and performs the initial bulk load
func NewResolver(ctx context.Context, store Store, reloadInterval time.Duration) (*Resolver, error) {
	r := &Resolver{
		store:    store,
		logger:   utils.GetLogger(),
		interval: reloadInterval,
		stopChan: make(chan struct{}),
	}

	snap, err := r.buildSnapshot(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to load entity catalog", err.Error())
	}
	r.current.Store(snap)

	r.logger.WithFields(logrus.Fields{
		"entities":  len(snap.records),
		"addresses": len(snap.byAddress),
	}).Info("Entity catalog loaded")

	return r, nil
}

// Start begins the background reload loop
func (r *Resolver) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.Reload(ctx)
			}
		}
	}()
}

// Stop stops the reload loop
func (r *Resolver) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Resolve maps an address to its entity. Never fails; unknown addresses
// resolve to the sentinel record.
func (r *Resolver) Resolve(address string) *models.EntityRecord {
	snap := r.current.Load()
	if rec, ok := snap.byAddress[address]; ok {
		return rec
	}
	return models.UnknownEntity()
}

// ResolveCoinbase attributes a coinbase script to a mining pool by tag
// substring match
func (r *Resolver) ResolveCoinbase(coinbaseScript string) *models.EntityRecord {
	snap := r.current.Load()
	lower := strings.ToLower(coinbaseScript)
	for tag, rec := range snap.byCoinbaseTag {
		if strings.Contains(lower, tag) {
			return rec
		}
	}
	return models.UnknownEntity()
}

// EntitiesOfKind returns all catalog records of one kind
func (r *Resolver) EntitiesOfKind(kind models.EntityKind) []*models.EntityRecord {
	snap := r.current.Load()
	var out []*models.EntityRecord
	for _, rec := range snap.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Reload rebuilds the snapshot and swaps it atomically. A failed load
// leaves the previous snapshot in place; concurrent readers never observe
// a partial update.
func (r *Resolver) Reload(ctx context.Context) {
	snap, err := r.buildSnapshot(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Entity catalog reload failed, keeping previous snapshot")
		return
	}

	r.current.Store(snap)
	r.logger.WithField("entities", len(snap.records)).Debug("Entity catalog reloaded")
}

// LoadedAt returns when the current snapshot was built
func (r *Resolver) LoadedAt() time.Time {
	return r.current.Load().loadedAt
}

func (r *Resolver) buildSnapshot(ctx context.Context) (*snapshot, error) {
	records, err := r.store.LoadEntities(ctx)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		byAddress:     make(map[string]*models.EntityRecord),
		byCoinbaseTag: make(map[string]*models.EntityRecord),
		records:       records,
		loadedAt:      time.Now(),
	}

	for _, rec := range records {
		for _, addr := range rec.Addresses {
			snap.byAddress[addr] = rec
		}
		for _, tag := range rec.CoinbaseTags {
			snap.byCoinbaseTag[strings.ToLower(tag)] = rec
		}
	}

	return snap, nil
}
