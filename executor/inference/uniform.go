package inference

import (
	"fmt"

	"github.com/brensch/chessmcts/executor/convert"
)

// Uniform spreads policy mass evenly over the action space and always
// returns a value of zero. It stands in when no model is configured.
type Uniform struct {
	planes int
	policy []float32
}

func NewUniform(planes int) (*Uniform, error) {
	if _, err := convert.NewEncoder(planes); err != nil {
		return nil, err
	}
	policy := make([]float32, convert.ActionSpace)
	for i := range policy {
		policy[i] = 1.0 / convert.ActionSpace
	}
	return &Uniform{planes: planes, policy: policy}, nil
}

func (u *Uniform) InputPlanes() int { return u.planes }

func (u *Uniform) Evaluate(input convert.Planes) ([]float32, float32, error) {
	if input.Channels != u.planes {
		return nil, 0, fmt.Errorf("uniform: got %d planes, want %d", input.Channels, u.planes)
	}
	policy := make([]float32, len(u.policy))
	copy(policy, u.policy)
	return policy, 0, nil
}
