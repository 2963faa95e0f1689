package restoration

import (
	"github.com/distgrid/restomilp/milp"
)

// Solution is a read-only view of a solver assignment over one built
// model. Binary readings tolerate the solver's integrality slack.
type Solution struct {
	eng    *Engine
	vars   *Variables
	values []float64
}

// NewSolution wraps a solver assignment for reading.
func (e *Engine) NewSolution(v *Variables, values []float64) *Solution {
	return &Solution{eng: e, vars: v, values: values}
}

func (s *Solution) on(v milp.Var) bool {
	return milp.SolutionValue(s.values, v) > 0.5
}

// Repaired reports whether the repair or build of line id was selected.
// False for lines that are not tasks.
func (s *Solution) Repaired(id string) bool {
	l, ok := s.eng.Net.LineIndex(id)
	if !ok {
		return false
	}
	k, ok := s.eng.Cat.TaskForLine(l)
	if !ok {
		return false
	}
	return s.on(s.vars.Repair[k])
}

// Energized reports line id's status at step t.
func (s *Solution) Energized(id string, t int) bool {
	l, ok := s.eng.Net.LineIndex(id)
	if !ok {
		return false
	}
	return s.on(s.vars.Energized[l][t-1])
}

// Served reports whether bus id's demand is served at step t.
func (s *Solution) Served(id string, t int) bool {
	b, ok := s.eng.Net.BusIndex(id)
	if !ok {
		return false
	}
	return s.on(s.vars.Served[b][t-1])
}

// FlowKW returns the active flow of line id on phase ph at step t,
// positive from the line's from-bus toward its to-bus.
func (s *Solution) FlowKW(id string, ph Phase, t int) float64 {
	l, ok := s.eng.Net.LineIndex(id)
	if !ok {
		return 0
	}
	return milp.SolutionValue(s.values, s.vars.FlowP[l][ph][t-1])
}

// Installed reports whether resource id was installed.
func (s *Solution) Installed(id string) bool {
	for r, res := range s.eng.Cat.Resources {
		if res.ID == id {
			return s.on(s.vars.Install[r])
		}
	}
	return false
}

// FuelGallons returns resource id's fuel allocation.
func (s *Solution) FuelGallons(id string) float64 {
	for r, res := range s.eng.Cat.Resources {
		if res.ID == id {
			return milp.SolutionValue(s.values, s.vars.Fuel[r])
		}
	}
	return 0
}

// Tour returns crew c's visit sequence as line IDs, depot excluded, in
// traversal order. Empty when the crew stays home.
func (s *Solution) Tour(c int) []string {
	var ids []string
	n := s.eng.Cat.NumNodes()
	at := 0
	for steps := 0; steps < n; steps++ {
		next := -1
		for j := 0; j < n; j++ {
			if j == at {
				continue
			}
			if s.on(s.vars.Arc[ArcKey{Crew: c, From: at, To: j}]) {
				next = j
				break
			}
		}
		if next <= 0 {
			break
		}
		task := s.eng.Cat.Tasks[next-1]
		ids = append(ids, s.eng.Net.Lines[task.Line].ID)
		at = next
	}
	return ids
}

// ArrivalHour returns crew c's arrival time at the task repairing line id,
// or zero if that crew never visits it.
func (s *Solution) ArrivalHour(c int, id string) float64 {
	l, ok := s.eng.Net.LineIndex(id)
	if !ok {
		return 0
	}
	k, ok := s.eng.Cat.TaskForLine(l)
	if !ok {
		return 0
	}
	return milp.SolutionValue(s.values, s.vars.Arrival[k+1][c])
}
