package domain

import "math"

// sizing.go — pure weight math for the position sizer.
//
// Weights are fractions of total equity. The contract with the ledger is
// that a weight vector passed to it never exceeds the per-position cap and
// never sums above the total-exposure cap; excess from capping is left
// uninvested, never redistributed on top of the caps.

// InverseVolWeights assigns each symbol a weight proportional to 1/vol,
// normalized so the weights sum to 1. Symbols with zero, negative or NaN
// volatility must be excluded by the caller; passing one returns nil to make
// the contract violation loud in tests.
func InverseVolWeights(vols map[string]float64) map[string]float64 {
	if len(vols) == 0 {
		return nil
	}

	sum := 0.0
	for _, v := range vols {
		if v <= 0 || math.IsNaN(v) {
			return nil
		}
		sum += 1.0 / v
	}

	weights := make(map[string]float64, len(vols))
	for sym, v := range vols {
		weights[sym] = (1.0 / v) / sum
	}
	return weights
}

// TargetRiskWeights sizes each symbol so that weight × vol ≈ targetRisk,
// i.e. every position contributes roughly the same volatility budget.
// The result is NOT normalized — low-vol regimes produce larger gross
// exposure and the caps in CapWeights rein it in.
func TargetRiskWeights(vols map[string]float64, targetRisk float64) map[string]float64 {
	if len(vols) == 0 || targetRisk <= 0 {
		return nil
	}

	weights := make(map[string]float64, len(vols))
	for sym, v := range vols {
		if v <= 0 || math.IsNaN(v) {
			return nil
		}
		weights[sym] = targetRisk / v
	}
	return weights
}

// CapWeights applies the per-position and aggregate exposure caps:
// each weight is clipped to maxPosition (the clipped excess stays
// uninvested), then the whole vector is scaled down uniformly if its sum
// still exceeds maxTotal. The input map is not modified.
func CapWeights(weights map[string]float64, maxPosition, maxTotal float64) map[string]float64 {
	if len(weights) == 0 {
		return nil
	}

	capped := make(map[string]float64, len(weights))
	sum := 0.0
	for sym, w := range weights {
		if w < 0 {
			w = 0
		}
		if w > maxPosition {
			w = maxPosition
		}
		capped[sym] = w
		sum += w
	}

	if sum > maxTotal && sum > 0 {
		scale := maxTotal / sum
		for sym := range capped {
			capped[sym] *= scale
		}
	}
	return capped
}
