package scoring

// Prior is the corpus-wide anchor for one attribute: the mean of the
// per-establishment raw means, over every establishment with at least one
// observation. It is computed once per run and passed explicitly into each
// per-establishment adjustment — never read from shared state.
type Prior struct {
	Mean           float64
	Establishments int
}

// ComputePriors derives the per-attribute priors from the full enriched
// corpus, grouped by establishment. Each establishment contributes one mean
// per attribute, so a clinic with thousands of reviews does not drown out the
// rest of the corpus.
func ComputePriors(samples map[int64]map[string][]int) map[string]Prior {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, byAttr := range samples {
		for attr, obs := range byAttr {
			if len(obs) == 0 {
				continue
			}
			sums[attr] += rawMean(obs)
			counts[attr]++
		}
	}
	priors := make(map[string]Prior, len(sums))
	for attr, sum := range sums {
		priors[attr] = Prior{Mean: sum / float64(counts[attr]), Establishments: counts[attr]}
	}
	return priors
}

// Adjusted shrinks a raw attribute sample toward the prior mean:
//
//	adjusted = (W·prior + Σobs) / (W + n)
//
// With priorWeight 0 it equals the raw mean; as n grows it converges to the
// raw mean regardless of priorWeight. The second return is false when the
// sample is empty — the attribute is absent, not zero.
func Adjusted(obs []int, prior Prior, priorWeight float64) (float64, bool) {
	n := len(obs)
	if n == 0 {
		return 0, false
	}
	sum := 0.0
	for _, o := range obs {
		sum += float64(o)
	}
	return (priorWeight*prior.Mean + sum) / (priorWeight + float64(n)), true
}

func rawMean(obs []int) float64 {
	sum := 0.0
	for _, o := range obs {
		sum += float64(o)
	}
	return sum / float64(len(obs))
}
