package memory

import "math"

// RetentionFactor models a forgetting curve: memory strength decays
// exponentially with elapsed hours, slowed by importance and by how often
// the memory has been accessed.
//
//	clamp(exp(-hours / (10 * importance * ln(accessCount + 1.5))), 0, 1)
//
// Strictly decreasing in hoursElapsed for fixed importance and access
// count. Zero importance decays immediately.
func RetentionFactor(hoursElapsed, importance float64, accessCount int) float64 {
	if hoursElapsed < 0 {
		hoursElapsed = 0
	}
	if accessCount < 1 {
		accessCount = 1
	}

	denom := 10 * importance * math.Log(float64(accessCount)+1.5)
	if denom <= 0 {
		if hoursElapsed == 0 {
			return 1
		}
		return 0
	}

	factor := math.Exp(-hoursElapsed / denom)
	return clamp01(factor)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
