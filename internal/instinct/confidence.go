package instinct

// ReinforcementConfig tunes the confidence algorithm.
type ReinforcementConfig struct {
	// Step is the bonus applied when ObservationCount crosses each
	// multiple of Threshold.
	Step float64

	// Threshold is the observation-count multiple that earns a bonus.
	Threshold int

	// Ceiling caps reinforced confidence. Candidates above the ceiling
	// are clamped down to it on reinforcement; the default algorithm
	// never pushes confidence past it.
	Ceiling float64
}

// DefaultReinforcementConfig matches the observed detector behavior:
// +0.15 on every third observation, capped at 0.9.
func DefaultReinforcementConfig() ReinforcementConfig {
	return ReinforcementConfig{
		Step:      0.15,
		Threshold: 3,
		Ceiling:   0.9,
	}
}

// reinforce computes the confidence after one more observation.
//
// The new confidence is min(ceiling, max(existing, candidate)), plus
// one Step the first time the observation count crosses a multiple of
// Threshold, still capped at the ceiling. The result is monotonic
// non-decreasing: no input ever lowers confidence. Demotion only
// happens through the explicit Decay operation.
func (c ReinforcementConfig) reinforce(existing, candidate float64, newObservationCount int) float64 {
	next := existing
	if candidate > next {
		next = candidate
	}
	if next > c.Ceiling {
		next = c.Ceiling
	}

	if c.Threshold > 0 && newObservationCount%c.Threshold == 0 {
		next += c.Step
		if next > c.Ceiling {
			next = c.Ceiling
		}
	}

	return clamp01(next)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
