package model

import "math"

// ArgMax returns the index of the largest score, the first one on ties, or
// -1 for an empty slice.
func ArgMax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}

// Softmax turns raw scores into probabilities.
func Softmax(scores []float32) []float32 {
	out := make([]float32, len(scores))
	if len(scores) == 0 {
		return out
	}

	maxVal := scores[ArgMax(scores)]
	var sum float64
	for i, v := range scores {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// newPrediction builds a Prediction from the first len(classes) scores.
func newPrediction(scores []float32, classes []string) *Prediction {
	if len(scores) > len(classes) {
		scores = scores[:len(classes)]
	}
	raw := append([]float32(nil), scores...)
	idx := ArgMax(raw)
	if idx < 0 {
		return &Prediction{Digit: -1, Scores: raw}
	}

	return &Prediction{
		Digit:      idx,
		Label:      classes[idx],
		Confidence: Softmax(raw)[idx],
		Scores:     raw,
	}
}
