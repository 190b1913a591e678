// Package instinct stores recognized recurring patterns with an
// evolving confidence score.
//
// Repeated observations reinforce a pattern instead of flipping a
// binary known/unknown flag: confidence follows
// min(ceiling, max(existing, candidate)) with a fixed bonus each time
// the observation count crosses a reinforcement threshold. The default
// algorithm is monotonic non-decreasing; Decay exists as an explicit,
// opt-in demotion path.
package instinct
