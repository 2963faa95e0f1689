package restoration

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownResourceBus = errors.New("resource references undefined bus")
	ErrBadAvailability    = errors.New("resource availability step outside build horizon")
	ErrMissingTravel      = errors.New("travel time missing for routing node pair")
	ErrDuplicateResource  = errors.New("duplicate resource id")
)

// Task is one crew-serviceable job: repairing a damaged line or building a
// candidate line. Tasks are the non-depot nodes of the routing graph.
type Task struct {
	// Line is the index of the task's line in the network.
	Line         int
	ServiceHours float64
	Cost         float64
}

// Catalog is the immutable resource/task/crew snapshot of an instance,
// including the derived fuel-allocation bounds and the portfolio budget.
type Catalog struct {
	Resources []Resource
	Tasks     []Task
	Crews     []Crew

	// ResourceBus[r] is the bus index hosting resource r.
	ResourceBus []int
	// taskByLine maps a line index to its task index.
	taskByLine map[int]int

	// travel[i][j] is crew travel time in hours between routing nodes,
	// node 0 being the depot and node k+1 being task k.
	travel [][]float64

	// FuelMin/FuelMax bound an installed generator's allocation in
	// gallons; zero for substations. FuelBudget caps the portfolio.
	FuelMin    []float64
	FuelMax    []float64
	FuelBudget float64
}

// NewCatalog validates resources and crews against the network and derives
// the dense travel matrix and fuel parameters.
func NewCatalog(n *Network, h *Horizon, resources []Resource, crews []Crew,
	travelHours map[string]map[string]float64, p Params) (*Catalog, error) {

	c := &Catalog{
		Resources:   resources,
		Crews:       crews,
		ResourceBus: make([]int, len(resources)),
		taskByLine:  make(map[int]int),
		FuelMin:     make([]float64, len(resources)),
		FuelMax:     make([]float64, len(resources)),
	}

	seen := make(map[string]bool, len(resources))
	for i, r := range resources {
		if seen[r.ID] {
			return nil, fmt.Errorf("resource %q: %w", r.ID, ErrDuplicateResource)
		}
		seen[r.ID] = true
		b, ok := n.BusIndex(r.Bus)
		if !ok {
			return nil, fmt.Errorf("resource %q bus %q: %w", r.ID, r.Bus, ErrUnknownResourceBus)
		}
		c.ResourceBus[i] = b
		if r.AvailableFrom < 1 || r.AvailableFrom > h.BuildSteps {
			return nil, fmt.Errorf("resource %q step %d: %w", r.ID, r.AvailableFrom, ErrBadAvailability)
		}
	}

	for l, line := range n.Lines {
		if line.Kind.IsTask() {
			c.taskByLine[l] = len(c.Tasks)
			c.Tasks = append(c.Tasks, Task{Line: l, ServiceHours: line.ServiceHours, Cost: line.Cost})
		}
	}

	if err := c.buildTravel(n, travelHours); err != nil {
		return nil, err
	}
	c.deriveFuel(h, p)
	return c, nil
}

func (c *Catalog) buildTravel(n *Network, hours map[string]map[string]float64) error {
	names := make([]string, c.NumNodes())
	names[0] = DepotName
	for k, task := range c.Tasks {
		names[k+1] = n.Lines[task.Line].ID
	}
	c.travel = make([][]float64, len(names))
	for i := range names {
		c.travel[i] = make([]float64, len(names))
		for j := range names {
			if i == j {
				continue
			}
			v, ok := lookupTravel(hours, names[i], names[j])
			if !ok {
				return fmt.Errorf("%q-%q: %w", names[i], names[j], ErrMissingTravel)
			}
			c.travel[i][j] = v
		}
	}
	return nil
}

func lookupTravel(hours map[string]map[string]float64, a, b string) (float64, bool) {
	if m, ok := hours[a]; ok {
		if v, ok := m[b]; ok {
			return v, true
		}
	}
	if m, ok := hours[b]; ok {
		if v, ok := m[a]; ok {
			return v, true
		}
	}
	return 0, false
}

// deriveFuel sizes each generator's allocation bounds and the aggregate
// budget from ratings and the horizon, per the parameter derivation chain:
// the minimum covers MinRunHours of full three-phase output, the maximum
// covers the whole multi-day horizon, and the budget covers the average
// generator running for the whole horizon times the install cap.
func (c *Catalog) deriveFuel(h *Horizon, p Params) {
	horizonHours := float64(h.BuildSteps) * h.StepHours * float64(1+h.ExtraDays)
	var totalKW float64
	var gens int
	for i, r := range c.Resources {
		if r.Kind != ResourceGenerator {
			continue
		}
		gens++
		totalKW += r.TotalKW()
		c.FuelMin[i] = p.GallonsPerKWh * r.TotalKW() * r.MinRunHours
		c.FuelMax[i] = p.GallonsPerKWh * r.TotalKW() * horizonHours
	}
	if gens > 0 {
		avgKW := totalKW / float64(gens)
		c.FuelBudget = p.GallonsPerKWh * avgKW * horizonHours * float64(p.MaxGenerators)
	}
}

// NumNodes returns the routing-node count: depot plus one node per task.
func (c *Catalog) NumNodes() int { return len(c.Tasks) + 1 }

// TravelHours returns crew travel time between routing nodes i and j.
func (c *Catalog) TravelHours(i, j int) float64 { return c.travel[i][j] }

// TaskForLine returns the task index of line l, if l is a task line.
func (c *Catalog) TaskForLine(l int) (int, bool) {
	k, ok := c.taskByLine[l]
	return k, ok
}

// ServiceHoursAt returns the service duration of routing node i (0 for the
// depot).
func (c *Catalog) ServiceHoursAt(i int) float64 {
	if i == 0 {
		return 0
	}
	return c.Tasks[i-1].ServiceHours
}
