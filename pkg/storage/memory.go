package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps artifacts in a process-local map. It is safe for
// concurrent use by multiple goroutines.
//
// If TTL is configured, a background goroutine removes artifacts whose
// training timestamp has aged past the TTL. Single-instance deployments can
// run on MemoryStore alone; multi-instance or restart-surviving setups
// should use FileStore or RedisStore instead.
type MemoryStore struct {
	mu            sync.RWMutex
	artifacts     map[string]Artifact
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory artifact store with no TTL. Artifacts
// stay until explicitly deleted or replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]Artifact),
	}
}

// NewMemoryStoreWithTTL creates an in-memory artifact store that expires
// artifacts trained more than ttl ago. A background goroutine sweeps at
// cleanupInterval (default one minute).
//
// Stop must be called when the store is no longer needed to release the
// sweep goroutine.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		artifacts:     make(map[string]Artifact),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background sweep goroutine. It blocks until the sweep
// has exited. Calling Stop multiple times or on a store without TTL is safe
// and does nothing.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes artifacts trained longer ago than the TTL.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for sku, artifact := range s.artifacts {
		if now.Sub(artifact.TrainedAt) > s.ttl {
			delete(s.artifacts, sku)
		}
	}
}

// Put stores an artifact, replacing any existing artifact for the SKU.
func (s *MemoryStore) Put(ctx context.Context, artifact Artifact) error {
	if err := validateSKU(artifact.SKU); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.artifacts[artifact.SKU] = artifact
	return nil
}

// Get retrieves the artifact for a SKU.
func (s *MemoryStore) Get(ctx context.Context, sku string) (Artifact, bool, error) {
	select {
	case <-ctx.Done():
		return Artifact{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, found := s.artifacts[sku]
	return artifact, found, nil
}

// List returns the listing view of every stored artifact.
func (s *MemoryStore) List(ctx context.Context) ([]Info, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.artifacts))
	for _, artifact := range s.artifacts {
		infos = append(infos, artifact.info())
	}
	return infos, nil
}

// Delete removes the artifact for a SKU. Returns ErrNotFound when none
// exists.
func (s *MemoryStore) Delete(ctx context.Context, sku string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.artifacts[sku]; !found {
		return ErrNotFound
	}
	delete(s.artifacts, sku)
	return nil
}

// Len returns the number of artifacts currently stored. Primarily useful
// for tests and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
