package inference

// RuntimeStats summarises batching behaviour of an ONNX client or pool.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int

	AvgBatchSize float64
	AvgRunMs     float64
}

func (s *RuntimeStats) finish() {
	if s.TotalBatches > 0 {
		s.AvgBatchSize = float64(s.TotalItems) / float64(s.TotalBatches)
		s.AvgRunMs = (float64(s.TotalRunNanos) / 1e6) / float64(s.TotalBatches)
	}
}
