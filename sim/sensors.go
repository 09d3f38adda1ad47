package sim

import (
	"math/rand/v2"
	"sync"

	"lautenbacher.net/wifinode/node"
)

type walk struct {
	base, step, spread float64
}

var walks = map[node.Kind]walk{
	node.Accelerometer: {base: 0, step: 40, spread: 1000},
	node.Gyroscope:     {base: 0, step: 50, spread: 2000},
	node.Magnetometer:  {base: 300, step: 5, spread: 200},
	node.Temperature:   {base: 22, step: 0.05, spread: 6},
	node.Humidity:      {base: 45, step: 0.2, spread: 20},
	node.Pressure:      {base: 1013, step: 0.1, spread: 15},
}

// Sensors produces random walk readings that stay within a plausible band
// around a base value. The accelerometer's Z axis carries gravity.
type Sensors struct {
	mu    sync.Mutex
	rng   *rand.Rand
	state map[node.Kind][3]float64
}

// NewSensors returns a deterministic sensor set for the given seed.
func NewSensors(seed uint64) *Sensors {
	s := &Sensors{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		state: map[node.Kind][3]float64{},
	}
	for k, w := range walks {
		s.state[k] = [3]float64{w.base, w.base, w.base}
	}
	acc := s.state[node.Accelerometer]
	acc[2] = 1000
	s.state[node.Accelerometer] = acc
	return s
}

// Read implements node.SensorReader.
func (s *Sensors) Read(kind node.Kind) (node.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := walks[kind]
	if !ok {
		return node.Sample{}, &UnknownSensorError{Kind: kind}
	}
	v := s.state[kind]
	for i := range v {
		center := w.base
		if kind == node.Accelerometer && i == 2 {
			center = 1000
		}
		v[i] += (s.rng.Float64()*2 - 1) * w.step
		v[i] = min(max(v[i], center-w.spread), center+w.spread)
	}
	s.state[kind] = v

	sample := node.Sample{Kind: kind}
	if kind.Vector() {
		sample.X, sample.Y, sample.Z = float32(v[0]), float32(v[1]), float32(v[2])
	} else {
		sample.Value = float32(v[0])
	}
	return sample, nil
}

// UnknownSensorError is returned for a sensor the set does not have.
type UnknownSensorError struct {
	Kind node.Kind
}

func (e *UnknownSensorError) Error() string {
	return "no simulated " + e.Kind.String() + " sensor"
}
