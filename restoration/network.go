package restoration

import (
	"errors"
	"fmt"
)

// Malformed-input failures detected during model construction, before any
// variable or constraint exists. These are distinct from solver-reported
// infeasibility.
var (
	ErrDuplicateBus  = errors.New("duplicate bus id")
	ErrDuplicateLine = errors.New("duplicate line id")
	ErrUnknownBus    = errors.New("line references undefined bus")
	ErrUnknownConfig = errors.New("line references undefined impedance configuration")
	ErrBadMatrix     = errors.New("impedance matrix is not 3x3")
	ErrPhaseMismatch = errors.New("line carries a phase its endpoint bus lacks")
	ErrSelfLoop      = errors.New("line endpoints are the same bus")
	ErrNoRootBus     = errors.New("root bus not present in bus list")
)

// Network is the validated static graph of the instance, with per-bus
// incidence indexes precomputed once so constraint generation never scans
// the full line list.
type Network struct {
	Buses   []Bus
	Lines   []Line
	Configs map[string]ImpedanceConfig

	// Root is the index of the substation interconnection bus.
	Root int

	busIndex  map[string]int
	lineIndex map[string]int
	// In[b] lists lines whose To endpoint is bus b; Out[b] lists lines
	// whose From endpoint is bus b.
	In  [][]int
	Out [][]int
}

// NewNetwork validates the raw topology and builds the incidence indexes.
func NewNetwork(buses []Bus, lines []Line, configs map[string]ImpedanceConfig, rootID string) (*Network, error) {
	n := &Network{
		Buses:     buses,
		Lines:     lines,
		Configs:   configs,
		busIndex:  make(map[string]int, len(buses)),
		lineIndex: make(map[string]int, len(lines)),
		In:        make([][]int, len(buses)),
		Out:       make([][]int, len(buses)),
	}
	for i, b := range buses {
		if _, ok := n.busIndex[b.ID]; ok {
			return nil, fmt.Errorf("bus %q: %w", b.ID, ErrDuplicateBus)
		}
		n.busIndex[b.ID] = i
	}
	root, ok := n.busIndex[rootID]
	if !ok {
		return nil, fmt.Errorf("root %q: %w", rootID, ErrNoRootBus)
	}
	n.Root = root

	for name, cfg := range configs {
		if err := checkMatrix(cfg); err != nil {
			return nil, fmt.Errorf("configuration %q: %w", name, err)
		}
	}
	for i, l := range lines {
		if _, ok := n.lineIndex[l.ID]; ok {
			return nil, fmt.Errorf("line %q: %w", l.ID, ErrDuplicateLine)
		}
		n.lineIndex[l.ID] = i
		from, ok := n.busIndex[l.From]
		if !ok {
			return nil, fmt.Errorf("line %q from %q: %w", l.ID, l.From, ErrUnknownBus)
		}
		to, ok := n.busIndex[l.To]
		if !ok {
			return nil, fmt.Errorf("line %q to %q: %w", l.ID, l.To, ErrUnknownBus)
		}
		// A self-loop would cancel out of its own virtual-flow balance
		// and slip past the acyclicity encoding.
		if from == to {
			return nil, fmt.Errorf("line %q: %w", l.ID, ErrSelfLoop)
		}
		if _, ok := configs[l.Config]; !ok {
			return nil, fmt.Errorf("line %q config %q: %w", l.ID, l.Config, ErrUnknownConfig)
		}
		for ph := Phase(0); ph < NumPhases; ph++ {
			if l.Phases[ph] && !(buses[from].Phases[ph] && buses[to].Phases[ph]) {
				return nil, fmt.Errorf("line %q phase %v: %w", l.ID, ph, ErrPhaseMismatch)
			}
		}
		n.Out[from] = append(n.Out[from], i)
		n.In[to] = append(n.In[to], i)
	}
	return n, nil
}

func checkMatrix(cfg ImpedanceConfig) error {
	for _, m := range []interface{ Dims() (int, int) }{cfg.R, cfg.X} {
		if m == nil {
			return ErrBadMatrix
		}
		if r, c := m.Dims(); r != NumPhases || c != NumPhases {
			return ErrBadMatrix
		}
	}
	return nil
}

// NumBuses returns the bus count.
func (n *Network) NumBuses() int { return len(n.Buses) }

// NumLines returns the line count.
func (n *Network) NumLines() int { return len(n.Lines) }

// BusIndex returns the index of the bus with the given id.
func (n *Network) BusIndex(id string) (int, bool) {
	i, ok := n.busIndex[id]
	return i, ok
}

// LineIndex returns the index of the line with the given id.
func (n *Network) LineIndex(id string) (int, bool) {
	i, ok := n.lineIndex[id]
	return i, ok
}

// Endpoints returns the bus indexes of line l.
func (n *Network) Endpoints(l int) (from, to int) {
	return n.busIndex[n.Lines[l].From], n.busIndex[n.Lines[l].To]
}

// LineConfig returns the impedance configuration of line l.
func (n *Network) LineConfig(l int) ImpedanceConfig {
	return n.Configs[n.Lines[l].Config]
}
