package output

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/pkg/lru"
	"github.com/vigilsec/vigil/pkg/sanitize"
)

var (
	quarantineBucket = []byte("quarantine")
	quarantineIndex  = []byte("quarantine_seq")
)

// BoltQuarantineStore persists quarantined request payloads in BoltDB so
// they survive restarts and can be pulled for offline review. A small LRU
// fronts reads for the review tooling's repeated lookups.
type BoltQuarantineStore struct {
	db       *bolt.DB
	hotCache *lru.Cache[string, *domain.QuarantineRecord]
}

type QuarantineConfig struct {
	DBPath       string
	HotCacheSize int
}

func DefaultQuarantineConfig() QuarantineConfig {
	return QuarantineConfig{
		DBPath:       "data/quarantine.db",
		HotCacheSize: 256,
	}
}

func NewBoltQuarantineStore(cfg QuarantineConfig) (*BoltQuarantineStore, error) {
	if cfg.HotCacheSize <= 0 {
		cfg.HotCacheSize = 256
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("quarantine db dir: %w", err)
		}
	}

	db, err := bolt.Open(cfg.DBPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open quarantine db %s: %w", cfg.DBPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(quarantineBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(quarantineIndex)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltQuarantineStore{
		db:       db,
		hotCache: lru.New[string, *domain.QuarantineRecord](cfg.HotCacheSize),
	}, nil
}

// Save stores the record under its id and appends it to a sequence index
// so Recent can walk newest-first. Payload fields are sanitized before
// persisting; review tooling renders them in terminals.
func (s *BoltQuarantineStore) Save(_ context.Context, rec *domain.QuarantineRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	rec.Endpoint = sanitize.Endpoint(rec.Endpoint, 2048)
	rec.Body = sanitize.Field(rec.Body, domain.MaxBodySize)
	rec.UserAgent = sanitize.UserAgent(rec.UserAgent, 512)
	rec.Query = sanitize.Details(rec.Query)
	rec.Headers = sanitize.Details(rec.Headers)

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(quarantineBucket).Put([]byte(rec.ID), payload); err != nil {
			return err
		}
		idx := tx.Bucket(quarantineIndex)
		seq, err := idx.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return idx.Put(key[:], []byte(rec.ID))
	})
	if err != nil {
		return fmt.Errorf("quarantine save %s: %w", rec.ID, err)
	}

	s.hotCache.Put(rec.ID, rec)
	log.Debug().Str("id", rec.ID).Str("subject", rec.Subject).Msg("Request quarantined")
	return nil
}

func (s *BoltQuarantineStore) Get(_ context.Context, id string) (*domain.QuarantineRecord, error) {
	if rec, ok := s.hotCache.Get(id); ok {
		return rec, nil
	}

	var rec *domain.QuarantineRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(quarantineBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		rec = &domain.QuarantineRecord{}
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	s.hotCache.Put(id, rec)
	return rec, nil
}

// Recent returns up to n records, newest first.
func (s *BoltQuarantineStore) Recent(_ context.Context, n int) ([]*domain.QuarantineRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	var records []*domain.QuarantineRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(quarantineIndex).Cursor()
		data := tx.Bucket(quarantineBucket)

		for k, id := idx.Last(); k != nil && len(records) < n; k, id = idx.Prev() {
			raw := data.Get(id)
			if raw == nil {
				continue
			}
			rec := &domain.QuarantineRecord{}
			if err := json.Unmarshal(raw, rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *BoltQuarantineStore) Close() error {
	return s.db.Close()
}

// MemoryQuarantineStore is the in-memory fallback used by tests and
// deployments that do not review quarantined payloads.
type MemoryQuarantineStore struct {
	records *lru.Cache[string, *domain.QuarantineRecord]
	order   []string
}

func NewMemoryQuarantineStore(capacity int) *MemoryQuarantineStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQuarantineStore{
		records: lru.New[string, *domain.QuarantineRecord](capacity),
	}
}

func (s *MemoryQuarantineStore) Save(_ context.Context, rec *domain.QuarantineRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.records.Put(rec.ID, rec)
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryQuarantineStore) Get(_ context.Context, id string) (*domain.QuarantineRecord, error) {
	rec, _ := s.records.Get(id)
	return rec, nil
}

func (s *MemoryQuarantineStore) Recent(_ context.Context, n int) ([]*domain.QuarantineRecord, error) {
	var out []*domain.QuarantineRecord
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		if rec, ok := s.records.Get(s.order[i]); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryQuarantineStore) Close() error { return nil }
