package inference

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/brensch/chessmcts/executor/convert"
	"github.com/rs/zerolog/log"
)

type BackendConfig struct {
	// ModelPath selects the ONNX backend; empty means Uniform with Planes.
	ModelPath string
	Sessions  int
	Onnx      OnnxClientConfig
	Planes    int

	// CacheDir wraps the backend in a badger Cache when set.
	CacheDir       string
	CacheNamespace string
}

// Backend is the evaluator a command searches with: an ONNX client or pool,
// or Uniform, optionally behind a Cache.
type Backend struct {
	eval    evaluator
	onnx    interface{ Stats() RuntimeStats }
	cache   *Cache
	closers []func() error
}

func OpenBackend(cfg BackendConfig) (*Backend, error) {
	b := &Backend{}
	switch {
	case cfg.ModelPath == "":
		planes := cfg.Planes
		if planes == 0 {
			planes = convert.MinimalPlanes
		}
		u, err := NewUniform(planes)
		if err != nil {
			return nil, err
		}
		b.eval = u
		log.Info().Int("planes", planes).Msg("no model configured, using uniform evaluator")
	case cfg.Sessions <= 1:
		c, err := NewOnnxClientWithConfig(cfg.ModelPath, cfg.Onnx)
		if err != nil {
			return nil, err
		}
		b.eval, b.onnx = c, c
		b.closers = append(b.closers, c.Close)
	default:
		p, err := NewOnnxClientPoolWithConfig(cfg.ModelPath, cfg.Sessions, cfg.Onnx)
		if err != nil {
			return nil, err
		}
		b.eval, b.onnx = p, p
		b.closers = append(b.closers, p.Close)
	}

	if cfg.CacheDir != "" {
		ns := cfg.CacheNamespace
		if ns == "" {
			ns = defaultNamespace(cfg.ModelPath)
		}
		c, err := NewCache(b.eval, CacheConfig{Dir: cfg.CacheDir, Namespace: ns})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.cache = c
		b.eval = c
		// Cache closes first so nothing reaches a destroyed session.
		b.closers = append([]func() error{c.Close}, b.closers...)
	}
	return b, nil
}

func defaultNamespace(modelPath string) string {
	if modelPath == "" {
		return "uniform"
	}
	return strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
}

func (b *Backend) Evaluate(input convert.Planes) ([]float32, float32, error) {
	return b.eval.Evaluate(input)
}

func (b *Backend) InputPlanes() int { return b.eval.InputPlanes() }

// Stats reports ONNX batching; ok is false for the uniform backend.
func (b *Backend) Stats() (st RuntimeStats, ok bool) {
	if b.onnx == nil {
		return RuntimeStats{}, false
	}
	return b.onnx.Stats(), true
}

// CacheStats reports cache hits and misses, zero without a cache.
func (b *Backend) CacheStats() (hits, misses int64) {
	if b.cache == nil {
		return 0, 0
	}
	return b.cache.Stats()
}

func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	b.closers = nil
	return errors.Join(errs...)
}
