package node

import (
	"fmt"
	"math"
)

// Argmax returns the index of the highest score, or -1 for no scores.
// Ties go to the lower index.
func Argmax(scores []float32) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}

// EnergyClassifier buckets a window of interleaved x, y, z accelerometer
// values by how much each axis moves between consecutive samples. Class i
// wins when the mean squared step lies below thresholds[i]; the last class
// takes everything above.
type EnergyClassifier struct {
	size       int
	thresholds []float32
}

// NewEnergyClassifier returns a classifier over size inputs with classes
// outputs. Thresholds grow by a factor of ten starting at first.
func NewEnergyClassifier(size, classes int, first float32) (*EnergyClassifier, error) {
	if size < 6 {
		return nil, fmt.Errorf("window of %d values is too small to classify", size)
	}
	if classes < 1 {
		return nil, fmt.Errorf("need at least one class, got %d", classes)
	}
	th := make([]float32, classes-1)
	for i := range th {
		th[i] = first * float32(math.Pow10(i))
	}
	return &EnergyClassifier{size: size, thresholds: th}, nil
}

func (c *EnergyClassifier) InputSize() int  { return c.size }
func (c *EnergyClassifier) OutputSize() int { return len(c.thresholds) + 1 }

// Run scores the window. The winning class gets 1, the others 0.
func (c *EnergyClassifier) Run(in []float32) ([]float32, error) {
	if len(in) != c.size {
		return nil, fmt.Errorf("classifier expects %d values, got %d", c.size, len(in))
	}
	var sum float64
	for i := 3; i < len(in); i++ {
		d := float64(in[i] - in[i-3])
		sum += d * d
	}
	energy := float32(sum / float64(len(in)-3))

	out := make([]float32, c.OutputSize())
	class := len(c.thresholds)
	for i, t := range c.thresholds {
		if energy < t {
			class = i
			break
		}
	}
	out[class] = 1
	return out, nil
}
