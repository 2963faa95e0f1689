package restoration

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// testInstance builds a four-bus feeder: substation 150 feeding bus 1,
// bus 2 behind a damaged line, and bus 3 hosting a candidate generator.
//
//	150 --l1(fixed)-- 1 --l2(damaged)-- 2
//	                  |
//	                  l3(fixed)
//	                  |
//	                  3 [generator g1]
func testInstance() *Instance {
	allPhases := [NumPhases]bool{true, true, true}
	cfg := ImpedanceConfig{
		R: mat.NewDense(3, 3, []float64{
			0.4576, 0.1560, 0.1535,
			0.1560, 0.4666, 0.1580,
			0.1535, 0.1580, 0.4615,
		}),
		X: mat.NewDense(3, 3, []float64{
			1.0780, 0.5017, 0.3849,
			0.5017, 1.0482, 0.4236,
			0.3849, 0.4236, 1.0651,
		}),
	}
	return &Instance{
		Buses: []Bus{
			{ID: "150", Phases: allPhases},
			{ID: "1", Phases: allPhases,
				BaseKW:   [NumPhases]float64{50, 50, 50},
				BaseKVAR: [NumPhases]float64{15, 15, 15}},
			{ID: "2", Phases: allPhases,
				BaseKW:   [NumPhases]float64{30, 30, 30},
				BaseKVAR: [NumPhases]float64{10, 10, 10}},
			{ID: "3", Phases: allPhases},
		},
		Lines: []Line{
			{ID: "l1", From: "150", To: "1", LengthFt: 1000, Phases: allPhases,
				Config: "cfg1", Kind: LineFixed, RatingKW: 1000},
			{ID: "l2", From: "1", To: "2", LengthFt: 500, Phases: allPhases,
				Config: "cfg1", Kind: LineDamagedRepairable, RatingKW: 1000,
				Cost: 500, ServiceHours: 2},
			{ID: "l3", From: "1", To: "3", LengthFt: 800, Phases: allPhases,
				Config: "cfg1", Kind: LineFixed, RatingKW: 1000},
		},
		Configs: map[string]ImpedanceConfig{"cfg1": cfg},
		Resources: []Resource{
			{ID: "g1", Bus: "3", Kind: ResourceGenerator, AvailableFrom: 1,
				RatingKW:   [NumPhases]float64{200, 200, 200},
				RatingKVAR: [NumPhases]float64{100, 100, 100},
				InstallCost: 1000, MinRunHours: 2},
		},
		Crews: []Crew{{ID: "c1"}},
		TravelHours: map[string]map[string]float64{
			DepotName: {"l2": 0.5},
		},
		Params: Params{
			BuildSteps:         2,
			StepHours:          4,
			ExtraDays:          3,
			LoadShape:          []float64{1.0, 0.8},
			MaxSubstations:     0,
			MaxGenerators:      1,
			MaxNewLines:        0,
			GallonsPerKWh:      0.08,
			FuelPricePerGallon: 3,
			VOLLPerKWh:         100,
			TravelCostPerHour:  10,
		},
	}
}

func TestNewNetwork_Validation(t *testing.T) {
	testCases := []struct {
		desc    string
		mutate  func(*Instance)
		wantErr error
	}{
		{
			desc:    "valid",
			mutate:  func(*Instance) {},
			wantErr: nil,
		},
		{
			desc: "duplicate bus",
			mutate: func(in *Instance) {
				in.Buses = append(in.Buses, Bus{ID: "1"})
			},
			wantErr: ErrDuplicateBus,
		},
		{
			desc: "duplicate line",
			mutate: func(in *Instance) {
				l := in.Lines[0]
				in.Lines = append(in.Lines, l)
			},
			wantErr: ErrDuplicateLine,
		},
		{
			desc: "unknown endpoint",
			mutate: func(in *Instance) {
				in.Lines[1].To = "99"
			},
			wantErr: ErrUnknownBus,
		},
		{
			desc: "unknown config",
			mutate: func(in *Instance) {
				in.Lines[0].Config = "nope"
			},
			wantErr: ErrUnknownConfig,
		},
		{
			desc: "self loop",
			mutate: func(in *Instance) {
				in.Lines[1].To = in.Lines[1].From
			},
			wantErr: ErrSelfLoop,
		},
		{
			desc: "non-square matrix",
			mutate: func(in *Instance) {
				in.Configs["bad"] = ImpedanceConfig{
					R: mat.NewDense(2, 2, nil),
					X: mat.NewDense(3, 3, nil),
				}
			},
			wantErr: ErrBadMatrix,
		},
		{
			desc: "phase not on endpoint",
			mutate: func(in *Instance) {
				in.Buses[3].Phases = [NumPhases]bool{true, false, false}
			},
			wantErr: ErrPhaseMismatch,
		},
		{
			desc: "missing root",
			mutate: func(in *Instance) {
				in.Buses[0].ID = "151"
				in.Lines[0].From = "151"
			},
			wantErr: ErrNoRootBus,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			in := testInstance()
			tc.mutate(in)
			_, err := NewNetwork(in.Buses, in.Lines, in.Configs, "150")
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("NewNetwork() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNetwork_Incidence(t *testing.T) {
	in := testInstance()
	n, err := NewNetwork(in.Buses, in.Lines, in.Configs, "150")
	if err != nil {
		t.Fatalf("NewNetwork() returned error %v", err)
	}
	b1, ok := n.BusIndex("1")
	if !ok {
		t.Fatal("BusIndex(1) not found")
	}
	if got, want := len(n.In[b1]), 1; got != want {
		t.Errorf("len(In[1]) = %v, want %v", got, want)
	}
	if got, want := len(n.Out[b1]), 2; got != want {
		t.Errorf("len(Out[1]) = %v, want %v", got, want)
	}
	l2, ok := n.LineIndex("l2")
	if !ok {
		t.Fatal("LineIndex(l2) not found")
	}
	from, to := n.Endpoints(l2)
	if from != b1 {
		t.Errorf("Endpoints(l2) from = %v, want %v", from, b1)
	}
	if n.Buses[to].ID != "2" {
		t.Errorf("Endpoints(l2) to bus = %q, want %q", n.Buses[to].ID, "2")
	}
}

func TestHorizon(t *testing.T) {
	if _, err := NewHorizon(0, 1, 0); !errors.Is(err, ErrBadHorizon) {
		t.Errorf("NewHorizon(0,1,0) error = %v, want %v", err, ErrBadHorizon)
	}
	if _, err := NewHorizon(2, 0, 0); !errors.Is(err, ErrBadHorizon) {
		t.Errorf("NewHorizon(2,0,0) error = %v, want %v", err, ErrBadHorizon)
	}

	h, err := NewHorizon(3, 4, 6)
	if err != nil {
		t.Fatalf("NewHorizon() returned error %v", err)
	}
	if got, want := h.TotalSteps(), 6; got != want {
		t.Errorf("TotalSteps() = %v, want %v", got, want)
	}
	if got, want := h.RunStart(), 4; got != want {
		t.Errorf("RunStart() = %v, want %v", got, want)
	}
	if !h.IsBuild(3) || h.IsBuild(4) {
		t.Errorf("IsBuild(3), IsBuild(4) = %v, %v, want true, false", h.IsBuild(3), h.IsBuild(4))
	}
	if got, want := h.Hour(2), 8.0; got != want {
		t.Errorf("Hour(2) = %v, want %v", got, want)
	}
	// Run steps replay the build-phase shape.
	if got, want := h.ShapeIndex(5), 1; got != want {
		t.Errorf("ShapeIndex(5) = %v, want %v", got, want)
	}
	if got, want := h.DayWeight(2), 1.0; got != want {
		t.Errorf("DayWeight(2) = %v, want %v", got, want)
	}
	if got, want := h.DayWeight(5), 6.0; got != want {
		t.Errorf("DayWeight(5) = %v, want %v", got, want)
	}
}

func TestDemand(t *testing.T) {
	in := testInstance()
	n, err := NewNetwork(in.Buses, in.Lines, in.Configs, "150")
	if err != nil {
		t.Fatalf("NewNetwork() returned error %v", err)
	}
	h, err := NewHorizon(2, 4, 3)
	if err != nil {
		t.Fatalf("NewHorizon() returned error %v", err)
	}

	if _, err := NewDemand(n, h, []float64{1}); !errors.Is(err, ErrBadLoadShape) {
		t.Errorf("NewDemand(short shape) error = %v, want %v", err, ErrBadLoadShape)
	}

	d, err := NewDemand(n, h, []float64{1.0, 0.8})
	if err != nil {
		t.Fatalf("NewDemand() returned error %v", err)
	}
	b2, _ := n.BusIndex("2")
	if got, want := d.ActiveKW(b2, PhaseA, 1), 30.0; got != want {
		t.Errorf("ActiveKW(2,a,1) = %v, want %v", got, want)
	}
	if got, want := d.ActiveKW(b2, PhaseA, 2), 24.0; got != want {
		t.Errorf("ActiveKW(2,a,2) = %v, want %v", got, want)
	}
	// Run step 4 replays build step 2.
	if got, want := d.ActiveKW(b2, PhaseA, 4), 24.0; got != want {
		t.Errorf("ActiveKW(2,a,4) = %v, want %v", got, want)
	}
	if got, want := d.ReactiveKVAR(b2, PhaseB, 1), 10.0; got != want {
		t.Errorf("ReactiveKVAR(2,b,1) = %v, want %v", got, want)
	}
	if got, want := d.TotalActiveKW(b2, 1), 90.0; got != want {
		t.Errorf("TotalActiveKW(2,1) = %v, want %v", got, want)
	}
	root, _ := n.BusIndex("150")
	if got := d.TotalActiveKW(root, 1); got != 0 {
		t.Errorf("TotalActiveKW(150,1) = %v, want 0", got)
	}
}

func TestNewCatalog(t *testing.T) {
	in := testInstance()
	n, err := NewNetwork(in.Buses, in.Lines, in.Configs, "150")
	if err != nil {
		t.Fatalf("NewNetwork() returned error %v", err)
	}
	h, err := NewHorizon(2, 4, 3)
	if err != nil {
		t.Fatalf("NewHorizon() returned error %v", err)
	}

	c, err := NewCatalog(n, h, in.Resources, in.Crews, in.TravelHours, in.Params)
	if err != nil {
		t.Fatalf("NewCatalog() returned error %v", err)
	}
	if got, want := c.NumNodes(), 2; got != want {
		t.Errorf("NumNodes() = %v, want %v", got, want)
	}
	l2, _ := n.LineIndex("l2")
	k, ok := c.TaskForLine(l2)
	if !ok {
		t.Fatal("TaskForLine(l2) not found")
	}
	if got, want := c.Tasks[k].ServiceHours, 2.0; got != want {
		t.Errorf("ServiceHours = %v, want %v", got, want)
	}
	// Symmetric lookup densifies both directions.
	if got, want := c.TravelHours(1, 0), 0.5; got != want {
		t.Errorf("TravelHours(1,0) = %v, want %v", got, want)
	}
	if got, want := c.ServiceHoursAt(0), 0.0; got != want {
		t.Errorf("ServiceHoursAt(0) = %v, want %v", got, want)
	}

	// Fuel derivation: gallons/kWh * 600 kW over the bound's duration.
	// Horizon hours = 2 steps * 4 h * (1 + 3 extra days) = 32.
	if got, want := c.FuelMin[0], 0.08*600*2; got != want {
		t.Errorf("FuelMin = %v, want %v", got, want)
	}
	if got, want := c.FuelMax[0], 0.08*600*32; got != want {
		t.Errorf("FuelMax = %v, want %v", got, want)
	}
	if got, want := c.FuelBudget, 0.08*600*32*1; got != want {
		t.Errorf("FuelBudget = %v, want %v", got, want)
	}
}

func TestNewCatalog_Validation(t *testing.T) {
	in := testInstance()
	n, err := NewNetwork(in.Buses, in.Lines, in.Configs, "150")
	if err != nil {
		t.Fatalf("NewNetwork() returned error %v", err)
	}
	h, err := NewHorizon(2, 4, 3)
	if err != nil {
		t.Fatalf("NewHorizon() returned error %v", err)
	}

	bad := testInstance()
	bad.Resources[0].Bus = "99"
	if _, err := NewCatalog(n, h, bad.Resources, bad.Crews, bad.TravelHours, bad.Params); !errors.Is(err, ErrUnknownResourceBus) {
		t.Errorf("unknown bus error = %v, want %v", err, ErrUnknownResourceBus)
	}

	bad = testInstance()
	bad.Resources[0].AvailableFrom = 3
	if _, err := NewCatalog(n, h, bad.Resources, bad.Crews, bad.TravelHours, bad.Params); !errors.Is(err, ErrBadAvailability) {
		t.Errorf("availability error = %v, want %v", err, ErrBadAvailability)
	}

	bad = testInstance()
	bad.Resources = append(bad.Resources, bad.Resources[0])
	if _, err := NewCatalog(n, h, bad.Resources, bad.Crews, bad.TravelHours, bad.Params); !errors.Is(err, ErrDuplicateResource) {
		t.Errorf("duplicate error = %v, want %v", err, ErrDuplicateResource)
	}

	bad = testInstance()
	bad.TravelHours = map[string]map[string]float64{}
	if _, err := NewCatalog(n, h, bad.Resources, bad.Crews, bad.TravelHours, bad.Params); !errors.Is(err, ErrMissingTravel) {
		t.Errorf("travel error = %v, want %v", err, ErrMissingTravel)
	}
}
