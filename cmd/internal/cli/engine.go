package cli

import (
	"flag"
	"time"

	"github.com/brensch/chessmcts/executor/inference"
	"github.com/brensch/chessmcts/executor/mcts"
	"github.com/brensch/chessmcts/logging"
)

// EngineFlags are the evaluator, search and logging flags every command takes.
type EngineFlags struct {
	LogLevel  string
	LogFormat string

	Model          string
	Planes         int
	PolicyFormat   string
	Sessions       int
	BatchSize      int
	BatchTimeout   time.Duration
	CUDA           bool
	CacheDir       string
	CacheNamespace string

	Simulations    int
	Cpuct          float64
	NetworkWeight  float64
	MaterialWeight float64
	MaterialScale  float64
	WhiteRelative  bool
	MoveTime       time.Duration
}

// RegisterEngineFlags adds the shared flags to fs. Defaults come from the
// CHESSMCTS_* environment variables, then mcts.DefaultConfig.
func RegisterEngineFlags(fs *flag.FlagSet) *EngineFlags {
	d := mcts.DefaultConfig()
	f := &EngineFlags{}
	fs.StringVar(&f.LogLevel, "log-level", GetEnvOrDefault("CHESSMCTS_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFormat, "log-format", GetEnvOrDefault("CHESSMCTS_LOG_FORMAT", logging.FormatConsole), "Log format (console, json, pretty)")

	fs.StringVar(&f.Model, "model", GetEnvOrDefault("CHESSMCTS_MODEL", ""), "ONNX model path; empty searches with a uniform evaluator")
	fs.IntVar(&f.Planes, "planes", GetEnvIntOrDefault("CHESSMCTS_PLANES", 12), "Input planes for the uniform evaluator (12 or 17)")
	fs.StringVar(&f.PolicyFormat, "policy-format", GetEnvOrDefault("CHESSMCTS_POLICY_FORMAT", "logprobs"), "Model policy output (logprobs, logits, probs)")
	fs.IntVar(&f.Sessions, "onnx-sessions", GetEnvIntOrDefault("CHESSMCTS_ONNX_SESSIONS", 1), "Number of ONNX Runtime sessions, each with its own batching loop")
	fs.IntVar(&f.BatchSize, "onnx-batch-size", GetEnvIntOrDefault("CHESSMCTS_ONNX_BATCH_SIZE", inference.DefaultBatchSize), "ONNX inference batch size")
	fs.DurationVar(&f.BatchTimeout, "onnx-batch-timeout", GetEnvDurationOrDefault("CHESSMCTS_ONNX_BATCH_TIMEOUT", inference.DefaultBatchTimeout), "Max time to wait for filling an ONNX batch")
	fs.BoolVar(&f.CUDA, "cuda", GetEnvBoolOrDefault("CHESSMCTS_CUDA", false), "Enable the CUDA execution provider")
	fs.StringVar(&f.CacheDir, "cache-dir", GetEnvOrDefault("CHESSMCTS_CACHE_DIR", ""), "Badger directory for caching evaluations; empty disables")
	fs.StringVar(&f.CacheNamespace, "cache-namespace", GetEnvOrDefault("CHESSMCTS_CACHE_NAMESPACE", ""), "Cache key namespace; defaults to the model file name")

	fs.IntVar(&f.Simulations, "sims", GetEnvIntOrDefault("CHESSMCTS_SIMS", d.Simulations), "MCTS simulations per search")
	fs.Float64Var(&f.Cpuct, "cpuct", GetEnvFloatOrDefault("CHESSMCTS_CPUCT", d.Cpuct), "PUCT exploration constant")
	fs.Float64Var(&f.NetworkWeight, "nn-weight", GetEnvFloatOrDefault("CHESSMCTS_NN_WEIGHT", d.NetworkWeight), "Weight of the network value in leaf evaluation")
	fs.Float64Var(&f.MaterialWeight, "material-weight", GetEnvFloatOrDefault("CHESSMCTS_MATERIAL_WEIGHT", d.MaterialWeight), "Weight of the material score in leaf evaluation")
	fs.Float64Var(&f.MaterialScale, "material-scale", GetEnvFloatOrDefault("CHESSMCTS_MATERIAL_SCALE", d.MaterialScale), "Pawns of advantage that map to a material score of 1")
	fs.BoolVar(&f.WhiteRelative, "white-relative", GetEnvBoolOrDefault("CHESSMCTS_WHITE_RELATIVE", false), "Model value head is from white's perspective")
	fs.DurationVar(&f.MoveTime, "movetime", GetEnvDurationOrDefault("CHESSMCTS_MOVETIME", 0), "Wall-clock limit per search; 0 means simulations only")
	return f
}

func (f *EngineFlags) SetupLogging() error {
	return logging.Setup(f.LogLevel, f.LogFormat)
}

func (f *EngineFlags) SearchConfig() mcts.Config {
	return mcts.Config{
		Simulations:               f.Simulations,
		Cpuct:                     f.Cpuct,
		NetworkWeight:             f.NetworkWeight,
		MaterialWeight:            f.MaterialWeight,
		MaterialScale:             f.MaterialScale,
		NetworkValueWhiteRelative: f.WhiteRelative,
		MoveTime:                  f.MoveTime,
	}
}

func (f *EngineFlags) BackendConfig() (inference.BackendConfig, error) {
	format, err := inference.ParsePolicyFormat(f.PolicyFormat)
	if err != nil {
		return inference.BackendConfig{}, err
	}
	return inference.BackendConfig{
		ModelPath: f.Model,
		Sessions:  f.Sessions,
		Planes:    f.Planes,
		Onnx: inference.OnnxClientConfig{
			BatchSize:    f.BatchSize,
			BatchTimeout: f.BatchTimeout,
			PolicyFormat: format,
			UseCUDA:      f.CUDA,
		},
		CacheDir:       f.CacheDir,
		CacheNamespace: f.CacheNamespace,
	}, nil
}

func (f *EngineFlags) OpenBackend() (*inference.Backend, error) {
	bc, err := f.BackendConfig()
	if err != nil {
		return nil, err
	}
	return inference.OpenBackend(bc)
}

// Open builds the backend and an engine searching with it. The caller closes
// the backend.
func (f *EngineFlags) Open() (*inference.Backend, *mcts.Engine, error) {
	backend, err := f.OpenBackend()
	if err != nil {
		return nil, nil, err
	}
	engine, err := mcts.New(backend, f.SearchConfig())
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return backend, engine, nil
}
