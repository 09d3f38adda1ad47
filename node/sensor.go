package node

import "fmt"

// Kind names one of the on-board sensors.
type Kind int

const (
	Accelerometer Kind = iota
	Gyroscope
	Magnetometer
	Temperature
	Humidity
	Pressure
)

var kindNames = [...]string{"accelerometer", "gyroscope", "magnetometer", "temperature", "humidity", "pressure"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Vector reports whether the sensor produces three axes.
func (k Kind) Vector() bool {
	return k == Accelerometer || k == Gyroscope || k == Magnetometer
}

// Sample is one reading. Vector sensors fill X, Y and Z, scalar sensors
// fill Value.
type Sample struct {
	Kind    Kind
	X, Y, Z float32
	Value   float32
}

// SensorReader reads the on-board sensors.
type SensorReader interface {
	Read(kind Kind) (Sample, error)
}

// Classifier runs the activity model on one window of samples.
type Classifier interface {
	InputSize() int
	OutputSize() int
	Run(in []float32) ([]float32, error)
}
