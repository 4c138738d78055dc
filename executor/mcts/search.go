package mcts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/brensch/chessmcts/executor/convert"
	"github.com/brensch/chessmcts/game"
	"github.com/rs/zerolog/log"
)

var (
	ErrGameOver     = errors.New("game is over")
	ErrNilEvaluator = errors.New("nil evaluator")
)

// Evaluator scores an encoded position. Policy has convert.ActionSpace
// probabilities and value is in [-1, 1] for the side to move.
type Evaluator interface {
	Evaluate(input convert.Planes) (policy []float32, value float32, err error)
	InputPlanes() int
}

// Config holds search configuration.
type Config struct {
	Simulations int
	Cpuct       float64

	// Leaf value = NetworkWeight*network + MaterialWeight*material.
	NetworkWeight  float64
	MaterialWeight float64
	MaterialScale  float64

	// NetworkValueWhiteRelative marks evaluators whose value is from white's
	// point of view; it is negated when black is to move.
	NetworkValueWhiteRelative bool

	// MoveTime bounds a single search when positive.
	MoveTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		Simulations:    200,
		Cpuct:          1.5,
		NetworkWeight:  0.2,
		MaterialWeight: 0.8,
		MaterialScale:  15,
	}
}

const (
	degeneratePriorSum = 1e-12
	maxPreallocNodes   = 1 << 16
)

// Engine runs PUCT search with an injected evaluator. An Engine holds no
// per-search state, so it may be shared between goroutines if its
// Evaluator is.
type Engine struct {
	eval Evaluator
	enc  convert.Encoder
	cfg  Config
}

func New(eval Evaluator, cfg Config) (*Engine, error) {
	if eval == nil {
		return nil, ErrNilEvaluator
	}
	enc, err := convert.NewEncoder(eval.InputPlanes())
	if err != nil {
		return nil, fmt.Errorf("evaluator input: %w", err)
	}
	if cfg.Simulations <= 0 {
		return nil, fmt.Errorf("simulations must be positive, got %d", cfg.Simulations)
	}
	if cfg.Cpuct < 0 || math.IsNaN(cfg.Cpuct) {
		return nil, fmt.Errorf("cpuct must be non-negative, got %v", cfg.Cpuct)
	}
	if cfg.MaterialScale <= 0 {
		cfg.MaterialScale = DefaultConfig().MaterialScale
	}
	return &Engine{eval: eval, enc: enc, cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Search returns the most visited root move and the root value from the
// perspective of the side to move. A cancelled context ends the search early;
// the best move so far is returned as long as one simulation completed.
func (e *Engine) Search(ctx context.Context, state game.State) (game.Move, float64, error) {
	tree, err := e.SearchTree(ctx, state)
	if err != nil {
		if tree == nil || tree.Root().Visits == 0 ||
			!(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return game.NoMove, 0, err
		}
		log.Debug().Err(err).Int("simulations", tree.Root().Visits).Msg("search stopped early")
	}

	best, ok := tree.bestChild()
	if !ok {
		legal := state.LegalMoves()
		log.Warn().Str("fen", fenOf(state)).Int("legal_moves", len(legal)).Msg("root has no children, falling back to first legal move")
		if len(legal) == 0 {
			return game.NoMove, 0, ErrGameOver
		}
		return legal[0], 0, nil
	}
	m, _ := convert.DecodeMove(tree.Node(best).Action, state)
	return m, tree.Root().Value(), nil
}

// SearchTree runs the configured number of simulations and returns the tree.
// On cancellation the partial tree is returned with ctx.Err(). Expiry of
// Config.MoveTime is not an error.
func (e *Engine) SearchTree(ctx context.Context, state game.State) (*Tree, error) {
	if state.IsGameOver() {
		return nil, ErrGameOver
	}

	searchCtx := ctx
	if e.cfg.MoveTime > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, e.cfg.MoveTime)
		defer cancel()
	}

	tree := newTree(min(e.cfg.Simulations*8+64, maxPreallocNodes))
	if _, err := e.evaluate(tree, tree.RootID(), state); err != nil {
		return nil, err
	}

	for i := 0; i < e.cfg.Simulations; i++ {
		if searchCtx.Err() != nil {
			if err := ctx.Err(); err != nil {
				return tree, err
			}
			break
		}
		if err := e.simulate(tree, state); err != nil {
			return tree, err
		}
	}
	return tree, nil
}

func (e *Engine) simulate(tree *Tree, root game.State) error {
	id := tree.RootID()
	state := root

	// Selection
	for tree.Node(id).IsExpanded() {
		child := e.selectChild(tree, id)
		action := tree.Node(child).Action
		m, ok := convert.DecodeMove(action, state)
		if !ok {
			log.Warn().Int("action", int(action)).Msg("undecodable action in tree, stopping at parent")
			break
		}
		next, err := state.Push(m)
		if err != nil {
			log.Warn().Err(err).Str("move", m.String()).Str("fen", fenOf(state)).Msg("decoded move is illegal, stopping at parent")
			break
		}
		id = child
		state = next
	}

	// Expansion & Evaluation
	v, err := e.evaluate(tree, id, state)
	if err != nil {
		return err
	}

	// Backpropagation
	tree.backpropagate(id, v)
	return nil
}

// selectChild maximises Q + U over the children of id. Children are stored in
// ascending action order and only a strictly better score replaces the
// incumbent, so ties go to the lowest action.
func (e *Engine) selectChild(tree *Tree, id NodeID) NodeID {
	parent := tree.Node(id)
	sqrtN := math.Sqrt(float64(parent.Visits))

	best := nilNode
	bestScore := math.Inf(-1)
	for i := int32(0); i < parent.numChildren; i++ {
		cid := parent.firstChild + NodeID(i)
		child := tree.Node(cid)
		q := -child.Value()
		u := e.cfg.Cpuct * child.Prior * sqrtN / (1 + float64(child.Visits))
		if score := q + u; best == nilNode || score > bestScore {
			best = cid
			bestScore = score
		}
	}
	return best
}

// evaluate returns the leaf value for the side to move at id and expands id
// if it has no children yet. Node statistics are not touched.
func (e *Engine) evaluate(tree *Tree, id NodeID, state game.State) (float64, error) {
	if state.IsGameOver() {
		if state.IsCheckmate() {
			return -1, nil
		}
		return 0, nil
	}

	policy, nn, err := e.eval.Evaluate(e.enc.Encode(state))
	if err != nil {
		return 0, fmt.Errorf("evaluate: %w", err)
	}
	if len(policy) != convert.ActionSpace {
		return 0, fmt.Errorf("evaluate: policy has %d entries, want %d", len(policy), convert.ActionSpace)
	}

	netValue := float64(nn)
	if e.cfg.NetworkValueWhiteRelative && state.Turn() == game.Black {
		netValue = -netValue
	}
	value := e.cfg.NetworkWeight*netValue + e.cfg.MaterialWeight*materialScore(state, e.cfg.MaterialScale)

	if !tree.Node(id).IsExpanded() {
		actions, priors := childPriors(state.LegalMoves(), policy)
		tree.expand(id, actions, priors)
	}
	return value, nil
}

// childPriors maps legal moves to unique action indices and normalises the
// policy over them. Non-finite and negative entries count as zero; a policy
// with no mass on the legal actions becomes uniform.
func childPriors(legal []game.Move, policy []float32) ([]convert.ActionIndex, []float64) {
	actions := make([]convert.ActionIndex, 0, len(legal))
	for _, m := range legal {
		actions = append(actions, convert.EncodeMove(m))
	}
	slices.Sort(actions)
	actions = slices.Compact(actions)

	priors := make([]float64, len(actions))
	sum := 0.0
	for i, a := range actions {
		p := float64(policy[a])
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			p = 0
		}
		priors[i] = p
		sum += p
	}
	if sum <= degeneratePriorSum {
		for i := range priors {
			priors[i] = 1 / float64(len(priors))
		}
		return actions, priors
	}
	for i := range priors {
		priors[i] /= sum
	}
	return actions, priors
}

func fenOf(state game.State) string {
	if s, ok := state.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}
