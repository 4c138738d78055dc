package inference

import (
	"fmt"
	"math"
	"strings"
)

// PolicyFormat describes what the model's policy head emits.
type PolicyFormat int

const (
	// LogProbs is a log_softmax head; exp recovers probabilities.
	LogProbs PolicyFormat = iota
	// Logits are raw scores; softmax is applied.
	Logits
	// Probs are already probabilities.
	Probs
)

func (f PolicyFormat) String() string {
	switch f {
	case LogProbs:
		return "logprobs"
	case Logits:
		return "logits"
	case Probs:
		return "probs"
	}
	return fmt.Sprintf("PolicyFormat(%d)", int(f))
}

func ParsePolicyFormat(s string) (PolicyFormat, error) {
	switch strings.ToLower(s) {
	case "", "logprobs", "log_softmax":
		return LogProbs, nil
	case "logits":
		return Logits, nil
	case "probs", "softmax":
		return Probs, nil
	}
	return 0, fmt.Errorf("unknown policy format %q", s)
}

// toProbabilities rewrites raw in place according to f.
func (f PolicyFormat) toProbabilities(raw []float32) {
	switch f {
	case LogProbs:
		for i, v := range raw {
			raw[i] = float32(math.Exp(float64(v)))
		}
	case Logits:
		softmax(raw)
	}
}

func softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	sum := float32(0)
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxV)))
		logits[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range logits {
			logits[i] *= inv
		}
	}
}
