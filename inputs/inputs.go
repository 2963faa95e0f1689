// Package inputs reads restoration problem instances from YAML.
package inputs

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/distgrid/restomilp/restoration"
)

// File is the YAML schema of one problem instance.
type File struct {
	Params    ParamsSpec            `yaml:"params"`
	Configs   map[string]ConfigSpec `yaml:"configs"`
	Buses     []BusSpec             `yaml:"buses"`
	Lines     []LineSpec            `yaml:"lines"`
	Resources []ResourceSpec        `yaml:"resources"`
	Crews     []string              `yaml:"crews"`
	// Travel holds symmetric crew travel hours keyed by node name: the
	// depot and task line IDs.
	Travel map[string]map[string]float64 `yaml:"travel_hours"`
}

type ParamsSpec struct {
	RootBus         string    `yaml:"root_bus"`
	BuildSteps      int       `yaml:"build_steps"`
	StepHours       float64   `yaml:"step_hours"`
	ExtraDays       int       `yaml:"extra_days"`
	LoadShape       []float64 `yaml:"load_shape"`
	MaxSubstations  int       `yaml:"max_substations"`
	MaxGenerators   int       `yaml:"max_generators"`
	MaxNewLines     int       `yaml:"max_new_lines"`
	VoltMinPU       float64   `yaml:"volt_min_pu"`
	VoltMaxPU       float64   `yaml:"volt_max_pu"`
	VoltageBaseKV   float64   `yaml:"voltage_base_kv"`
	SubstationCapKW float64   `yaml:"substation_cap_kw"`
	BigMHours       float64   `yaml:"big_m_hours"`
	BigMVoltSq      float64   `yaml:"big_m_volt_sq"`
	BigMVirtual     float64   `yaml:"big_m_virtual"`
	GallonsPerKWh   float64   `yaml:"gallons_per_kwh"`
	FuelPrice       float64   `yaml:"fuel_price_per_gallon"`
	VOLLPerKWh      float64   `yaml:"voll_per_kwh"`
	TravelCost      float64   `yaml:"travel_cost_per_hour"`
}

// ConfigSpec carries 3x3 impedance matrices in row-major order, ohms per
// thousand feet.
type ConfigSpec struct {
	R [][]float64 `yaml:"r"`
	X [][]float64 `yaml:"x"`
}

type BusSpec struct {
	ID string `yaml:"id"`
	// Phases lists the available phases as a subset of "abc".
	Phases string    `yaml:"phases"`
	KW     []float64 `yaml:"kw"`
	KVAR   []float64 `yaml:"kvar"`
}

type LineSpec struct {
	ID           string  `yaml:"id"`
	From         string  `yaml:"from"`
	To           string  `yaml:"to"`
	LengthFt     float64 `yaml:"length_ft"`
	Phases       string  `yaml:"phases"`
	Config       string  `yaml:"config"`
	Kind         string  `yaml:"kind"`
	RatingKW     float64 `yaml:"rating_kw"`
	Closed       bool    `yaml:"closed"`
	Cost         float64 `yaml:"cost"`
	ServiceHours float64 `yaml:"service_hours"`
}

type ResourceSpec struct {
	ID            string    `yaml:"id"`
	Bus           string    `yaml:"bus"`
	Kind          string    `yaml:"kind"`
	AvailableFrom int       `yaml:"available_from"`
	RatingKW      []float64 `yaml:"rating_kw"`
	RatingKVAR    []float64 `yaml:"rating_kvar"`
	InstallCost   float64   `yaml:"install_cost"`
	MinRunHours   float64   `yaml:"min_run_hours"`
}

var lineKinds = map[string]restoration.LineKind{
	"fixed":        restoration.LineFixed,
	"switch":       restoration.LineSwitch,
	"regulator":    restoration.LineRegulator,
	"damaged":      restoration.LineDamagedRepairable,
	"unrepairable": restoration.LineDamagedUnrepairable,
	"candidate":    restoration.LineCandidate,
}

// Load reads and decodes path into an Instance.
func Load(path string) (*restoration.Instance, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document into an Instance.
func Parse(raw []byte) (*restoration.Instance, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding instance: %w", err)
	}
	return f.Instance()
}

// Instance converts the decoded file into the model input form.
func (f *File) Instance() (*restoration.Instance, error) {
	inst := &restoration.Instance{
		Configs:     make(map[string]restoration.ImpedanceConfig, len(f.Configs)),
		TravelHours: f.Travel,
		Params: restoration.Params{
			RootBus:            f.Params.RootBus,
			BuildSteps:         f.Params.BuildSteps,
			StepHours:          f.Params.StepHours,
			ExtraDays:          f.Params.ExtraDays,
			LoadShape:          f.Params.LoadShape,
			MaxSubstations:     f.Params.MaxSubstations,
			MaxGenerators:      f.Params.MaxGenerators,
			MaxNewLines:        f.Params.MaxNewLines,
			VoltMinPU:          f.Params.VoltMinPU,
			VoltMaxPU:          f.Params.VoltMaxPU,
			VoltageBaseKV:      f.Params.VoltageBaseKV,
			SubstationCapKW:    f.Params.SubstationCapKW,
			BigMHours:          f.Params.BigMHours,
			BigMVoltSq:         f.Params.BigMVoltSq,
			BigMVirtual:        f.Params.BigMVirtual,
			GallonsPerKWh:      f.Params.GallonsPerKWh,
			FuelPricePerGallon: f.Params.FuelPrice,
			VOLLPerKWh:         f.Params.VOLLPerKWh,
			TravelCostPerHour:  f.Params.TravelCost,
		},
	}

	for name, cfg := range f.Configs {
		r, err := denseMatrix(cfg.R)
		if err != nil {
			return nil, fmt.Errorf("config %q r: %w", name, err)
		}
		x, err := denseMatrix(cfg.X)
		if err != nil {
			return nil, fmt.Errorf("config %q x: %w", name, err)
		}
		inst.Configs[name] = restoration.ImpedanceConfig{R: r, X: x}
	}

	for _, b := range f.Buses {
		phases, err := phaseMask(b.Phases)
		if err != nil {
			return nil, fmt.Errorf("bus %q: %w", b.ID, err)
		}
		kw, err := perPhase(b.KW, phases)
		if err != nil {
			return nil, fmt.Errorf("bus %q kw: %w", b.ID, err)
		}
		kvar, err := perPhase(b.KVAR, phases)
		if err != nil {
			return nil, fmt.Errorf("bus %q kvar: %w", b.ID, err)
		}
		inst.Buses = append(inst.Buses, restoration.Bus{
			ID: b.ID, Phases: phases, BaseKW: kw, BaseKVAR: kvar,
		})
	}

	for _, l := range f.Lines {
		phases, err := phaseMask(l.Phases)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", l.ID, err)
		}
		kind, ok := lineKinds[l.Kind]
		if !ok {
			return nil, fmt.Errorf("line %q: unknown kind %q", l.ID, l.Kind)
		}
		inst.Lines = append(inst.Lines, restoration.Line{
			ID: l.ID, From: l.From, To: l.To,
			LengthFt: l.LengthFt, Phases: phases, Config: l.Config,
			Kind: kind, RatingKW: l.RatingKW, Closed: l.Closed,
			Cost: l.Cost, ServiceHours: l.ServiceHours,
		})
	}

	for _, r := range f.Resources {
		var kind restoration.ResourceKind
		switch r.Kind {
		case "substation":
			kind = restoration.ResourceSubstation
		case "generator":
			kind = restoration.ResourceGenerator
		default:
			return nil, fmt.Errorf("resource %q: unknown kind %q", r.ID, r.Kind)
		}
		all := [restoration.NumPhases]bool{true, true, true}
		kw, err := perPhase(r.RatingKW, all)
		if err != nil {
			return nil, fmt.Errorf("resource %q rating_kw: %w", r.ID, err)
		}
		kvar, err := perPhase(r.RatingKVAR, all)
		if err != nil {
			return nil, fmt.Errorf("resource %q rating_kvar: %w", r.ID, err)
		}
		inst.Resources = append(inst.Resources, restoration.Resource{
			ID: r.ID, Bus: r.Bus, Kind: kind,
			AvailableFrom: r.AvailableFrom,
			RatingKW:      kw, RatingKVAR: kvar,
			InstallCost: r.InstallCost, MinRunHours: r.MinRunHours,
		})
	}

	for _, id := range f.Crews {
		inst.Crews = append(inst.Crews, restoration.Crew{ID: id})
	}
	return inst, nil
}

func denseMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) != restoration.NumPhases {
		return nil, fmt.Errorf("want %d rows, got %d", restoration.NumPhases, len(rows))
	}
	m := mat.NewDense(restoration.NumPhases, restoration.NumPhases, nil)
	for i, row := range rows {
		if len(row) != restoration.NumPhases {
			return nil, fmt.Errorf("row %d: want %d entries, got %d", i, restoration.NumPhases, len(row))
		}
		m.SetRow(i, row)
	}
	return m, nil
}

// phaseMask parses a subset of "abc" into the per-phase flag array.
func phaseMask(s string) ([restoration.NumPhases]bool, error) {
	var mask [restoration.NumPhases]bool
	for _, c := range s {
		switch c {
		case 'a':
			mask[restoration.PhaseA] = true
		case 'b':
			mask[restoration.PhaseB] = true
		case 'c':
			mask[restoration.PhaseC] = true
		default:
			return mask, fmt.Errorf("bad phase %q in %q", c, s)
		}
	}
	return mask, nil
}

// perPhase expands a YAML value list onto the phase array: empty means
// all zero, one value spreads over the available phases, three values map
// positionally.
func perPhase(vals []float64, phases [restoration.NumPhases]bool) ([restoration.NumPhases]float64, error) {
	var out [restoration.NumPhases]float64
	switch len(vals) {
	case 0:
	case 1:
		for ph, ok := range phases {
			if ok {
				out[ph] = vals[0]
			}
		}
	case restoration.NumPhases:
		copy(out[:], vals)
	default:
		return out, fmt.Errorf("want 0, 1, or %d values, got %d", restoration.NumPhases, len(vals))
	}
	return out, nil
}
