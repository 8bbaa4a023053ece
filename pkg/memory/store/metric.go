package store

import (
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Metric names the distance function of a store.
type Metric string

const (
	// Cosine distance is 1 - cosine similarity, in [0, 2].
	Cosine Metric = "cosine"
	// Euclidean distance is the L2 norm of the difference.
	Euclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case Cosine:
		return Cosine, nil
	case Euclidean, "l2":
		return Euclidean, nil
	default:
		return "", goerr.New("unknown distance metric", goerr.V("metric", s))
	}
}

// Distance computes the metric between two equal-length vectors.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	default:
		var dot, na, nb float64
		for i := range a {
			x, y := float64(a[i]), float64(b[i])
			dot += x * y
			na += x * x
			nb += y * y
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return clampDistance(1 - dot/math.Sqrt(na*nb))
	}
}

func clampDistance(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 1
	case d < 0:
		return 0
	default:
		return d
	}
}
