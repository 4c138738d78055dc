package inference

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/brensch/chessmcts/executor/convert"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// evaluator mirrors mcts.Evaluator so the cache can wrap any backend.
type evaluator interface {
	Evaluate(input convert.Planes) ([]float32, float32, error)
	InputPlanes() int
}

const cacheEntrySize = (PolicySize + ValueSize) * 4

// Cache stores evaluator outputs in badger keyed by the encoded planes, so
// repeated positions skip inference across runs. Results are returned exactly
// as the wrapped evaluator produced them.
type Cache struct {
	db        *badger.DB
	next      evaluator
	namespace []byte

	hits   atomic.Int64
	misses atomic.Int64
}

type CacheConfig struct {
	Dir string
	// Namespace separates entries from different models sharing a directory.
	Namespace string
	// InMemory keeps the cache in RAM and ignores Dir.
	InMemory bool
}

func NewCache(next evaluator, cfg CacheConfig) (*Cache, error) {
	if next == nil {
		return nil, errors.New("cache: nil evaluator")
	}
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open eval cache: %w", err)
	}
	return &Cache{db: db, next: next, namespace: []byte(cfg.Namespace + "/")}, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Cache) InputPlanes() int { return c.next.InputPlanes() }

func (c *Cache) key(input convert.Planes) []byte {
	k := make([]byte, 0, len(c.namespace)+1+8*input.Channels)
	k = append(k, c.namespace...)
	return append(k, input.Key()...)
}

func (c *Cache) Evaluate(input convert.Planes) ([]float32, float32, error) {
	key := c.key(input)

	var policy []float32
	var value float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			policy, value, derr = decodeEntry(val)
			return derr
		})
	})
	switch {
	case err == nil:
		c.hits.Add(1)
		return policy, value, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		log.Warn().Err(err).Msg("eval cache read failed")
	}

	c.misses.Add(1)
	policy, value, err = c.next.Evaluate(input)
	if err != nil {
		return nil, 0, err
	}
	if len(policy) == PolicySize {
		entry := encodeEntry(policy, value)
		if err := c.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, entry)
		}); err != nil {
			log.Warn().Err(err).Msg("eval cache write failed")
		}
	}
	return policy, value, nil
}

// Stats returns cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func encodeEntry(policy []float32, value float32) []byte {
	buf := make([]byte, cacheEntrySize)
	for i, p := range policy {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(p))
	}
	binary.LittleEndian.PutUint32(buf[PolicySize*4:], math.Float32bits(value))
	return buf
}

func decodeEntry(buf []byte) ([]float32, float32, error) {
	if len(buf) != cacheEntrySize {
		return nil, 0, fmt.Errorf("cache entry has %d bytes, want %d", len(buf), cacheEntrySize)
	}
	policy := make([]float32, PolicySize)
	for i := range policy {
		policy[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	value := math.Float32frombits(binary.LittleEndian.Uint32(buf[PolicySize*4:]))
	return policy, value, nil
}
