// Package cache implements the tiered cache (C8): an in-process L1 LRU
// tier backed by github.com/hashicorp/golang-lru/v2, a durable L2 tier
// backed by go.etcd.io/bbolt, per-keyspace generation counters for bulk
// invalidation, and golang.org/x/sync/singleflight stampede control. The
// bbolt-bucket-per-keyspace layout mirrors the teacher's registry
// fileCache's one-file-per-source convention, generalized from files to
// buckets because bbolt gives us atomic multi-key transactions the
// teacher's flat JSON cache never needed.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	"github.com/nox-hq/skillforge/internal/config"
)

// Keyspace names the logical caches spec.md §4.8 defines, each with its
// own TTL and generation counter.
type Keyspace string

const (
	KeyspaceSearch      Keyspace = "search"
	KeyspaceSkillDetail Keyspace = "skill_detail"
	KeyspaceRecommend   Keyspace = "recommend"
	KeyspaceCompare     Keyspace = "compare"
)

type l1Entry struct {
	generation uint64
	value      []byte
}

// Cache is the two-tier cache: a bounded in-process LRU in front of a
// durable bbolt store, sharing one generation counter per keyspace.
type Cache struct {
	cfg   config.CacheConfig
	l1    *lru.Cache[string, l1Entry]
	l2    *bolt.DB
	group singleflight.Group

	// genMu guards generation: invalidation and lookups race across
	// concurrent search/recommend reads and indexer-driven invalidation.
	genMu      sync.RWMutex
	generation map[Keyspace]uint64
}

// Open opens (creating if absent) the bbolt database at path and
// constructs the L1/L2 tiers per cfg.
func Open(path string, cfg config.CacheConfig) (*Cache, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	keyspaces := []Keyspace{KeyspaceSearch, KeyspaceSkillDetail, KeyspaceRecommend, KeyspaceCompare}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, ks := range keyspaces {
			if _, err := tx.CreateBucketIfNotExists([]byte(ks)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", ks, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	l1, err := lru.New[string, l1Entry](cfg.L1MaxEntries)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("constructing L1 cache: %w", err)
	}

	gen := make(map[Keyspace]uint64, len(keyspaces))
	for _, ks := range keyspaces {
		gen[ks] = 1
	}

	return &Cache{cfg: cfg, l1: l1, l2: db, generation: gen}, nil
}

// Close releases the L2 database handle.
func (c *Cache) Close() error { return c.l2.Close() }

func (c *Cache) ttl(ks Keyspace) time.Duration {
	switch ks {
	case KeyspaceSearch:
		return c.cfg.SearchTTL
	case KeyspaceSkillDetail:
		return c.cfg.SkillDetailTTL
	case KeyspaceRecommend:
		return c.cfg.RecommendTTL
	case KeyspaceCompare:
		return c.cfg.CompareTTL
	default:
		return 15 * time.Minute
	}
}

func l1Key(ks Keyspace, key string) string { return string(ks) + "\x00" + key }

// Get returns a cached value for (keyspace, key), checking L1 first, then
// falling back to L2 and populating L1 on a hit. A value stamped with a
// stale generation (from before the keyspace was last invalidated) is
// treated as a miss.
func (c *Cache) Get(ctx context.Context, ks Keyspace, key string) ([]byte, bool, error) {
	curGen := c.currentGeneration(ks)

	if e, ok := c.l1.Get(l1Key(ks, key)); ok {
		if e.generation == curGen {
			return e.value, true, nil
		}
		c.l1.Remove(l1Key(ks, key))
	}

	var value []byte
	var found bool
	err := c.l2.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ks))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		gen, expiresAt, payload, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		if gen != curGen || time.Now().After(expiresAt) {
			return nil
		}
		value = payload
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading L2 cache: %w", err)
	}
	if found {
		c.l1.Add(l1Key(ks, key), l1Entry{generation: curGen, value: value})
	}
	return value, found, nil
}

// Set writes a value into both tiers, stamped with the keyspace's current
// generation and an expiry derived from the keyspace's configured TTL.
func (c *Cache) Set(ctx context.Context, ks Keyspace, key string, value []byte) error {
	curGen := c.currentGeneration(ks)
	expiresAt := time.Now().Add(c.ttl(ks))

	c.l1.Add(l1Key(ks, key), l1Entry{generation: curGen, value: value})

	return c.l2.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ks))
		if b == nil {
			var err error
			b, err = tx.CreateBucketIfNotExists([]byte(ks))
			if err != nil {
				return err
			}
		}
		return b.Put([]byte(key), encodeEntry(curGen, expiresAt, value))
	})
}

// Invalidate bumps a keyspace's generation counter, making every entry
// written before this call a miss on next read without touching disk —
// the bulk-invalidation mechanism spec.md's sync pipeline uses after a
// source finishes syncing.
func (c *Cache) Invalidate(ks Keyspace) {
	c.genMu.Lock()
	c.generation[ks]++
	c.genMu.Unlock()
}

func (c *Cache) currentGeneration(ks Keyspace) uint64 {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	return c.generation[ks]
}

// GetOrCompute wraps Get/Set around a singleflight group keyed by
// (keyspace, key) so concurrent misses for the same key collapse into one
// compute call instead of a stampede (spec.md §5's cache stampede control).
func (c *Cache) GetOrCompute(ctx context.Context, ks Keyspace, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok, err := c.Get(ctx, ks, key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	v, err, _ := c.group.Do(string(ks)+"\x00"+key, func() (any, error) {
		if value, ok, err := c.Get(ctx, ks, key); err != nil {
			return nil, err
		} else if ok {
			return value, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, ks, key, value); err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func encodeEntry(gen uint64, expiresAt time.Time, payload []byte) []byte {
	buf := make([]byte, 8+8+len(payload))
	binary.BigEndian.PutUint64(buf[0:8], gen)
	binary.BigEndian.PutUint64(buf[8:16], uint64(expiresAt.UnixNano()))
	copy(buf[16:], payload)
	return buf
}

func decodeEntry(raw []byte) (gen uint64, expiresAt time.Time, payload []byte, err error) {
	if len(raw) < 16 {
		return 0, time.Time{}, nil, fmt.Errorf("corrupt cache entry: length %d", len(raw))
	}
	gen = binary.BigEndian.Uint64(raw[0:8])
	expiresAt = time.Unix(0, int64(binary.BigEndian.Uint64(raw[8:16])))
	payload = raw[16:]
	return gen, expiresAt, payload, nil
}
