// Package restoration builds the restoration-planning MILP for a damaged
// radial distribution network: repair sequencing, temporary-line builds,
// portable substation/generator siting, crew routing, and reconfiguration,
// minimized over installation, repair, travel, fuel, and unserved-energy
// cost across a build phase with full linearized physics and a run phase
// with active-power-only balance.
//
// The package is a single-pass, deterministic model generator. A derivation
// pass produces immutable parameter snapshots (Network, Horizon, Demand,
// Catalog); Build then emits variables and constraints into a milp.Builder
// and returns the finished model together with a variable registry for
// reading the solver's assignment back.
package restoration

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Phase indexes one of the three distribution phases.
type Phase int

const (
	PhaseA Phase = iota
	PhaseB
	PhaseC

	// NumPhases is the number of phases modeled per bus and line.
	NumPhases = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseA:
		return "a"
	case PhaseB:
		return "b"
	case PhaseC:
		return "c"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// LineKind tags the mutually exclusive line categories. Every line belongs
// to exactly one.
type LineKind int

const (
	// LineFixed is an undamaged line that is energized for the whole
	// horizon.
	LineFixed LineKind = iota
	// LineSwitch holds its input open/closed state for the whole horizon.
	LineSwitch
	// LineRegulator is a voltage regulator: always energized, bypasses
	// KVL in favor of a fixed voltage-ratio band.
	LineRegulator
	// LineDamagedRepairable is out of service until a crew repairs it.
	LineDamagedRepairable
	// LineDamagedUnrepairable is out of service for the whole horizon.
	LineDamagedUnrepairable
	// LineCandidate is a temporary line that may be built by a crew.
	LineCandidate
)

func (k LineKind) String() string {
	switch k {
	case LineFixed:
		return "fixed"
	case LineSwitch:
		return "switch"
	case LineRegulator:
		return "regulator"
	case LineDamagedRepairable:
		return "damaged"
	case LineDamagedUnrepairable:
		return "unrepairable"
	case LineCandidate:
		return "candidate"
	}
	return fmt.Sprintf("LineKind(%d)", int(k))
}

// IsTask reports whether lines of this kind are crew-routing tasks.
func (k LineKind) IsTask() bool {
	return k == LineDamagedRepairable || k == LineCandidate
}

// Bus is one node of the network with its per-phase availability and base
// demand.
type Bus struct {
	ID       string
	Phases   [NumPhases]bool
	BaseKW   [NumPhases]float64
	BaseKVAR [NumPhases]float64
}

// Line is one branch of the network.
type Line struct {
	ID       string
	From     string
	To       string
	LengthFt float64
	Phases   [NumPhases]bool
	Config   string
	Kind     LineKind
	// RatingKW caps per-phase active (and, in the build phase, reactive)
	// flow magnitude while the line is energized.
	RatingKW float64
	// Closed is the held state of a switch line; ignored otherwise.
	Closed bool
	// Cost is the repair cost (damaged) or build cost (candidate).
	Cost float64
	// ServiceHours is the on-site crew time for task lines.
	ServiceHours float64
}

// ImpedanceConfig couples the three phases of a line through 3x3 resistance
// and reactance matrices, in ohms per thousand feet.
type ImpedanceConfig struct {
	R *mat.Dense
	X *mat.Dense
}

// ResourceKind distinguishes portable substations from portable generators.
type ResourceKind int

const (
	ResourceSubstation ResourceKind = iota
	ResourceGenerator
)

func (k ResourceKind) String() string {
	if k == ResourceSubstation {
		return "substation"
	}
	return "generator"
}

// Resource is a candidate portable substation or generator.
type Resource struct {
	ID   string
	Bus  string
	Kind ResourceKind
	// AvailableFrom is the first build-phase step (1-based) at which the
	// resource can produce output if installed.
	AvailableFrom int
	RatingKW      [NumPhases]float64
	RatingKVAR    [NumPhases]float64
	InstallCost   float64
	// MinRunHours sizes the fuel-allocation lower bound of an installed
	// generator: full three-phase output for at least this long.
	MinRunHours float64
}

// TotalKW returns the three-phase active rating.
func (r Resource) TotalKW() float64 {
	var s float64
	for _, v := range r.RatingKW {
		s += v
	}
	return s
}

// Crew is an independent repair crew touring tasks from the depot.
type Crew struct {
	ID string
}

// Params carries the scalar policy knobs of one problem instance.
type Params struct {
	// RootBus is the fixed substation interconnection bus.
	RootBus string
	// BuildSteps is H, the number of build-phase steps; the run phase
	// mirrors it as steps H+1..2H.
	BuildSteps int
	// StepHours is the width of one step.
	StepHours float64
	// ExtraDays scales run-phase objective and fuel contributions to
	// approximate that many repeated days beyond day one.
	ExtraDays int
	// LoadShape is the hourly demand multiplier, one entry per build
	// step; the run phase replays it.
	LoadShape []float64

	MaxSubstations int
	MaxGenerators  int
	MaxNewLines    int

	// VoltMinPU/VoltMaxPU bound voltage magnitude (per unit) on available
	// phases; squared internally.
	VoltMinPU float64
	VoltMaxPU float64
	// VoltageBaseKV converts kW/kVAr line flow into per-unit
	// squared-voltage drop in the linearized KVL relation.
	VoltageBaseKV float64
	// SubstationCapKW caps root-substation transfer per phase and step.
	SubstationCapKW float64

	// BigMHours relaxes routing and availability timing rows. It must
	// dominate the largest feasible arrival time: the sum of all task
	// service hours plus the longest travel leg per visited task. Zero
	// means derive that bound.
	BigMHours float64
	// BigMVoltSq relaxes the KVL relation of a de-energized line, in
	// squared per-unit volts. It must dominate the widest possible
	// squared-voltage difference plus impedance-weighted flow term.
	BigMVoltSq float64
	// BigMVirtual caps virtual flow on an energized line. It must be at
	// least the bus count. Zero means derive it.
	BigMVirtual float64

	GallonsPerKWh      float64
	FuelPricePerGallon float64
	// VOLLPerKWh prices unserved energy.
	VOLLPerKWh float64
	// TravelCostPerHour prices crew travel in the objective.
	TravelCostPerHour float64
}

// DefaultRootBus is the substation interconnection bus of the source feeder.
const DefaultRootBus = "150"

// Instance aggregates the immutable inputs of one restoration problem.
type Instance struct {
	Buses     []Bus
	Lines     []Line
	Configs   map[string]ImpedanceConfig
	Resources []Resource
	Crews     []Crew
	// TravelHours holds crew travel times keyed by routing-node name:
	// the depot node DepotName and task line IDs. Lookup is symmetric.
	TravelHours map[string]map[string]float64
	Params      Params
}

// DepotName keys the crew depot in Instance.TravelHours.
const DepotName = "depot"
