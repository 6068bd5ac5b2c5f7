package scoring

// NPS maps a raw observation sample to a promoter-style score on [-100,100]:
// %promoters − %detractors over the individual observations. It is computed
// from the distribution, never from the adjusted mean — collapsing to a mean
// first would discard exactly what this statistic is meant to surface.
// Observations below low are detractors, at or above high are promoters,
// anything between is passive. Empty samples yield no score.
func NPS(obs []int, low, high float64) (float64, bool) {
	if len(obs) == 0 {
		return 0, false
	}
	promoters, detractors := 0, 0
	for _, o := range obs {
		v := float64(o)
		switch {
		case v >= high:
			promoters++
		case v < low:
			detractors++
		}
	}
	return float64(promoters-detractors) / float64(len(obs)) * 100, true
}
