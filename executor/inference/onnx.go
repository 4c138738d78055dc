package inference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/chessmcts/executor/convert"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	PolicySize = convert.ActionSpace
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClosed = errors.New("onnx client closed")

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	PolicyFormat PolicyFormat
	// UseCUDA appends the CUDA execution provider when it can be created.
	UseCUDA bool
}

func DefaultOnnxClientConfig() OnnxClientConfig {
	return OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout}
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// OnnxClient implements the evaluator using ONNX Runtime with batching.
// Evaluate may be called from many goroutines; requests are gathered into
// batches of up to BatchSize, or whatever arrived within BatchTimeout.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	planes       int
	requestsChan chan inferenceRequest
	done         chan struct{}
	closeOnce    sync.Once
	loopDone     chan struct{}
	cfg          OnnxClientConfig

	totalBatches  atomic.Int64
	totalItems    atomic.Int64
	totalRunNanos atomic.Int64
	lastBatchSize atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, DefaultOnnxClientConfig())
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if err := initRuntime(); err != nil {
		return nil, err
	}

	planes, err := modelInputPlanes(modelPath)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputs := []string{"input"}
	outputs := []string{"policy", "value"}

	// Searches run on many goroutines; keep each session single threaded.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				log.Warn().Err(err).Msg("failed to append CUDA provider")
			} else {
				log.Info().Msg("CUDA provider enabled")
			}
		} else {
			log.Warn().Err(err).Msg("failed to create CUDA options")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		planes:       planes,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	go client.batchLoop()

	log.Debug().Str("model", modelPath).Int("planes", planes).Int("batch_size", cfg.BatchSize).
		Stringer("policy_format", cfg.PolicyFormat).Msg("onnx session ready")
	return client, nil
}

func initRuntime() error {
	if runtime.GOOS == "linux" {
		ensureLinuxLibraryPath()
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			candidates := []string{
				"libonnxruntime.so",
				"libonnxruntime.so.1",
				"libonnxruntime.so.1.23.2",
			}
			for _, name := range candidates {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

// modelInputPlanes reads the channel dimension of the model's first input,
// expected to be shaped [batch, planes, 8, 8].
func modelInputPlanes(modelPath string) (int, error) {
	inputs, _, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return 0, fmt.Errorf("read model info: %w", err)
	}
	if len(inputs) == 0 {
		return 0, fmt.Errorf("model %s has no inputs", modelPath)
	}
	dims := inputs[0].Dimensions
	if len(dims) != 4 || dims[2] != convert.Height || dims[3] != convert.Width {
		return 0, fmt.Errorf("model input %q has shape %v, want [N, C, 8, 8]", inputs[0].Name, dims)
	}
	planes := int(dims[1])
	if _, err := convert.NewEncoder(planes); err != nil {
		return 0, fmt.Errorf("model %s: %w", modelPath, err)
	}
	return planes, nil
}

func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Common locations of CUDA and Torch shared libraries when installed via
	// pip into the project's .venv.
	candidateDirs := []string{cwd}

	patterns := []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "onnxruntime", "capi"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "torch", "lib"),
	}
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		candidateDirs = append(candidateDirs, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	existingSet := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p == "" {
			continue
		}
		existingSet[p] = true
	}

	toAdd := make([]string, 0, len(candidateDirs))
	for _, d := range candidateDirs {
		if existingSet[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			toAdd = append(toAdd, d)
		}
	}
	if len(toAdd) == 0 {
		return
	}

	newVal := strings.Join(toAdd, ":")
	if existing != "" {
		newVal = newVal + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", newVal)
}

func (c *OnnxClient) InputPlanes() int { return c.planes }

// Close stops the batch loop and destroys the session. Pending requests fail
// with ErrClosed; Evaluate must not be called after Close returns.
func (c *OnnxClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.loopDone
	return c.session.Destroy()
}

func (c *OnnxClient) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.totalBatches.Load(),
		TotalItems:    c.totalItems.Load(),
		TotalRunNanos: c.totalRunNanos.Load(),
		LastBatchSize: c.lastBatchSize.Load(),
		QueueLen:      len(c.requestsChan),
	}
	st.finish()
	return st
}

func (c *OnnxClient) Evaluate(input convert.Planes) ([]float32, float32, error) {
	if input.Channels != c.planes || len(input.Data) != c.planes*convert.PlaneSize {
		return nil, 0, fmt.Errorf("onnx: got %d planes, model wants %d", input.Channels, c.planes)
	}

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: input.Data, respChan: respChan}:
	case <-c.done:
		return nil, 0, ErrClosed
	}

	// A send can win the race against done after the loop has drained the
	// queue; loopDone covers that request.
	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.loopDone:
		select {
		case resp := <-respChan:
			return resp.policy, resp.value, resp.err
		default:
			return nil, 0, ErrClosed
		}
	}
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)

	inputSize := c.planes * convert.PlaneSize
	batchInput := make([]float32, 0, c.cfg.BatchSize*inputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.done:
			flush()
			for {
				select {
				case req := <-c.requestsChan:
					req.respChan <- inferenceResponse{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	currentBatchSize := int64(len(requests))
	start := time.Now()

	inputShape := ort.NewShape(currentBatchSize, int64(c.planes), convert.Height, convert.Width)
	inputTensor, err := ort.NewTensor(inputShape, batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, PolicySize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, ValueSize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	err = c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor})
	if err != nil {
		c.failBatch(requests, err)
		return
	}

	c.totalBatches.Add(1)
	c.totalItems.Add(currentBatchSize)
	c.totalRunNanos.Add(time.Since(start).Nanoseconds())
	c.lastBatchSize.Store(currentBatchSize)

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])
		c.cfg.PolicyFormat.toProbabilities(policy)

		req.respChan <- inferenceResponse{
			policy: policy,
			value:  valueData[i*ValueSize],
		}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	log.Error().Err(err).Int("batch", len(requests)).Msg("onnx batch failed")
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}
