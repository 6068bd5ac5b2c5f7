package scoring

// Composite combines attribute-level values into one named score using
// non-negative weights. Weights are renormalized over the attributes actually
// present, so partial coverage scales the remaining weights up instead of
// silently dragging the composite toward zero. Absent only when no weighted
// attribute has a value.
func Composite(values map[string]float64, weights map[string]float64) (float64, bool) {
	weightedSum, totalWeight := 0.0, 0.0
	for attr, w := range weights {
		v, ok := values[attr]
		if !ok {
			continue
		}
		weightedSum += v * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, false
	}
	return weightedSum / totalWeight, true
}
