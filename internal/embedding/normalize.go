package embedding

import (
	"fmt"
	"math"

	"github.com/hyperjump/kioku/internal/models"
)

// ValidateAndNormalize scales vec in place to unit L2 norm. It rejects vectors
// whose norm is zero or non-finite, since dividing by such a norm is undefined.
func ValidateAndNormalize(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", models.ErrEmbedding)
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return fmt.Errorf("%w: vector norm is %v", models.ErrEmbedding, norm)
	}
	inv := float32(1 / norm)
	for i := range vec {
		vec[i] *= inv
	}
	return nil
}
