package inference

import (
	"fmt"
	"sync/atomic"

	"github.com/brensch/chessmcts/executor/convert"
)

// OnnxPool fans out Evaluate calls across multiple OnnxClient instances.
// Each client has its own batching loop and ORT session, allowing parallel
// inference execution on the GPU.
type OnnxPool struct {
	clients []*OnnxClient
	rr      atomic.Uint64
}

func (p *OnnxPool) Stats() RuntimeStats {
	var st RuntimeStats
	for _, c := range p.clients {
		cs := c.Stats()
		st.TotalBatches += cs.TotalBatches
		st.TotalItems += cs.TotalItems
		st.TotalRunNanos += cs.TotalRunNanos
		st.QueueLen += cs.QueueLen
		if cs.LastBatchSize > st.LastBatchSize {
			st.LastBatchSize = cs.LastBatchSize
		}
	}
	st.finish()
	return st
}

func NewOnnxClientPool(modelPath string, sessions int) (*OnnxPool, error) {
	return NewOnnxClientPoolWithConfig(modelPath, sessions, DefaultOnnxClientConfig())
}

func NewOnnxClientPoolWithConfig(modelPath string, sessions int, cfg OnnxClientConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	clients := make([]*OnnxClient, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewOnnxClientWithConfig(modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}

	return &OnnxPool{clients: clients}, nil
}

func (p *OnnxPool) Close() error {
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InputPlanes is the plane count shared by every session in the pool.
func (p *OnnxPool) InputPlanes() int {
	if len(p.clients) == 0 {
		return 0
	}
	return p.clients[0].InputPlanes()
}

func (p *OnnxPool) Evaluate(input convert.Planes) ([]float32, float32, error) {
	if len(p.clients) == 0 {
		return nil, 0, fmt.Errorf("onnx pool has no clients")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].Evaluate(input)
}
