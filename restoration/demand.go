package restoration

import "fmt"

// Demand is the immutable per-bus, per-phase, per-step demand snapshot:
// base load times hourly shape, masked to zero on unavailable phases.
// Derived once before any variable exists; never recomputed.
type Demand struct {
	h        *Horizon
	numBuses int
	active   []float64
	reactive []float64
}

// NewDemand derives the demand snapshot from the network's base loads and
// the hourly shape.
func NewDemand(n *Network, h *Horizon, shape []float64) (*Demand, error) {
	if len(shape) != h.BuildSteps {
		return nil, fmt.Errorf("shape has %d entries for %d build steps: %w",
			len(shape), h.BuildSteps, ErrBadLoadShape)
	}
	d := &Demand{
		h:        h,
		numBuses: n.NumBuses(),
		active:   make([]float64, n.NumBuses()*NumPhases*h.TotalSteps()),
		reactive: make([]float64, n.NumBuses()*NumPhases*h.TotalSteps()),
	}
	for b, bus := range n.Buses {
		for ph := Phase(0); ph < NumPhases; ph++ {
			if !bus.Phases[ph] {
				continue
			}
			for t := 1; t <= h.TotalSteps(); t++ {
				mult := shape[h.ShapeIndex(t)]
				i := d.index(b, ph, t)
				d.active[i] = bus.BaseKW[ph] * mult
				d.reactive[i] = bus.BaseKVAR[ph] * mult
			}
		}
	}
	return d, nil
}

func (d *Demand) index(bus int, ph Phase, t int) int {
	return (bus*NumPhases+int(ph))*d.h.TotalSteps() + t - 1
}

// ActiveKW returns the nominal active demand at (bus, phase, step).
func (d *Demand) ActiveKW(bus int, ph Phase, t int) float64 {
	return d.active[d.index(bus, ph, t)]
}

// ReactiveKVAR returns the nominal reactive demand at (bus, phase, step).
func (d *Demand) ReactiveKVAR(bus int, ph Phase, t int) float64 {
	return d.reactive[d.index(bus, ph, t)]
}

// TotalActiveKW returns the three-phase active demand at (bus, step).
func (d *Demand) TotalActiveKW(bus, t int) float64 {
	var s float64
	for ph := Phase(0); ph < NumPhases; ph++ {
		s += d.ActiveKW(bus, ph, t)
	}
	return s
}
