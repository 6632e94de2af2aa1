package cache

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
	"github.com/vigilsec/vigil/pkg/bloomfilter"
)

const (
	blockedIPPrefix   = "blocked_ip:"
	blockedUserPrefix = "blocked_user:"
)

// BlockStore keeps the set of blocked identifiers. The in-memory map is
// the fast-path read; the external cache entry with its TTL is the source
// of truth for expiry. There is no active sweep: a local entry whose
// deadline has passed is treated as stale and dropped on the next check.
//
// A Bloom filter fronts the hot path so the common case (identifier never
// blocked) costs no lock and no cache round-trip. The filter only grows;
// false positives fall through to the map and cache, and Reload rebuilds
// it from scratch.
type BlockStore struct {
	cache ports.KVCache

	mu      sync.RWMutex
	entries map[string]*domain.BlockEntry
	bloom   *bloomfilter.Filter
}

func NewBlockStore(kv ports.KVCache) *BlockStore {
	return &BlockStore{
		cache:   kv,
		entries: make(map[string]*domain.BlockEntry),
		bloom:   bloomfilter.New(100000, 0.01),
	}
}

func blockKey(identifier string) string {
	if net.ParseIP(identifier) != nil {
		return blockedIPPrefix + identifier
	}
	return blockedUserPrefix + identifier
}

// Block records a TTL-bounded block for an IP or user id. The in-memory
// set is updated even when the cache write fails, so single-process
// protection survives a cache outage; the error is still returned for the
// response record.
func (s *BlockStore) Block(ctx context.Context, identifier, reason string, duration time.Duration) error {
	now := time.Now().UTC()
	entry := &domain.BlockEntry{
		Identifier: identifier,
		Reason:     reason,
		BlockedAt:  now,
		ExpiresAt:  now.Add(duration),
	}

	s.mu.Lock()
	s.entries[identifier] = entry
	s.bloom.Add(identifier)
	s.mu.Unlock()

	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, blockKey(identifier), string(payload), duration); err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Block not mirrored to cache")
		return err
	}

	log.Info().
		Str("identifier", identifier).
		Str("reason", reason).
		Dur("duration", duration).
		Msg("Identifier blocked")
	return nil
}

// Unblock lifts a block. Cache errors are logged but do not restore the
// local entry.
func (s *BlockStore) Unblock(ctx context.Context, identifier string) error {
	s.mu.Lock()
	delete(s.entries, identifier)
	s.mu.Unlock()

	if err := s.cache.Del(ctx, blockKey(identifier)); err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Unblock not mirrored to cache")
		return err
	}
	return nil
}

// IsBlocked reports whether an identifier has an active block. Cache
// unavailability degrades to the local view, and ultimately to unblocked.
func (s *BlockStore) IsBlocked(ctx context.Context, identifier string) bool {
	entry, ok := s.Entry(ctx, identifier)
	return ok && entry != nil
}

// Entry returns the active block entry, consulting the local set first
// and falling back to the shared cache for blocks placed by other
// processes.
func (s *BlockStore) Entry(ctx context.Context, identifier string) (*domain.BlockEntry, bool) {
	s.mu.RLock()
	inBloom := s.bloom.MayContain(identifier)
	entry, ok := s.entries[identifier]
	s.mu.RUnlock()

	if !inBloom {
		return nil, false
	}

	now := time.Now()
	if ok {
		if !entry.Expired(now) {
			return entry, true
		}
		// Local deadline passed; the cache TTL has the final word.
		s.mu.Lock()
		delete(s.entries, identifier)
		s.mu.Unlock()
	}

	adopted, found := s.fetch(ctx, identifier)
	if !found {
		return nil, false
	}

	s.mu.Lock()
	s.entries[identifier] = adopted
	s.mu.Unlock()
	return adopted, true
}

// fetch reads an identifier's block entry from the shared cache.
func (s *BlockStore) fetch(ctx context.Context, identifier string) (*domain.BlockEntry, bool) {
	raw, found, err := s.cache.Get(ctx, blockKey(identifier))
	if err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Block lookup degraded to unblocked")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry domain.BlockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Malformed block entry in cache")
		return nil, false
	}
	if entry.Expired(time.Now()) {
		return nil, false
	}
	return &entry, true
}

// Reload rebuilds the in-memory set and Bloom filter from the cache.
// Called at startup so blocks survive process restarts.
func (s *BlockStore) Reload(ctx context.Context) error {
	entries := make(map[string]*domain.BlockEntry)

	for _, prefix := range []string{blockedIPPrefix, blockedUserPrefix} {
		keys, err := s.cache.Keys(ctx, prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			identifier := strings.TrimPrefix(key, prefix)
			if entry, found := s.fetch(ctx, identifier); found {
				entries[identifier] = entry
			}
		}
	}

	bloom := bloomfilter.New(100000, 0.01)
	for id := range entries {
		bloom.Add(id)
	}

	s.mu.Lock()
	s.entries = entries
	s.bloom = bloom
	s.mu.Unlock()

	log.Info().Int("count", len(entries)).Msg("Block store reloaded from cache")
	return nil
}

// Count returns the number of locally known active blocks.
func (s *BlockStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
