package restoration

import (
	"fmt"

	"github.com/distgrid/restomilp/milp"
)

// addStatusTracking links the routing layer to the electrical layer: a
// repaired or built task line becomes available at exactly one build step,
// no earlier than its crew finishes on site, and its energization status
// is the cumulative availability. Run-phase statuses are frozen to the
// last build step.
func (e *Engine) addStatusTracking() {
	mb, v := e.mb, e.v
	net, hor, cat := e.Net, e.Hor, e.Cat
	H := hor.BuildSteps
	M := e.Par.BigMHours

	for k, task := range cat.Tasks {
		id := net.Lines[task.Line].ID

		// One availability step iff the task is picked.
		picks := milp.NewLinearExpr()
		for t := 1; t <= H; t++ {
			picks.Add(v.Avail[k][t-1])
		}
		mb.AddEquality(picks, v.Repair[k]).
			WithName(fmt.Sprintf("pick_one[%s]", id))

		// The availability step starts no earlier than the visiting
		// crew's completion hour, arrival plus on-site service. Relaxed
		// for every crew that does not visit.
		for c, crew := range cat.Crews {
			inK := milp.NewLinearExpr()
			for i := 0; i < cat.NumNodes(); i++ {
				if i != k+1 {
					inK.Add(v.Arc[ArcKey{c, i, k + 1}])
				}
			}
			lhs := milp.NewLinearExpr().AddTerm(v.Arrival[k+1][c], -1).AddTerm(inK, -M)
			for t := 1; t <= H; t++ {
				lhs.AddTerm(v.Avail[k][t-1], hor.Hour(t))
			}
			mb.AddLinearConstraint(lhs, milp.AtLeast(task.ServiceHours-M)).
				WithName(fmt.Sprintf("pick_after_completion[%s,%s]", crew.ID, id))
		}

		// Energization is cumulative availability.
		for t := 1; t <= H; t++ {
			avail := milp.NewLinearExpr()
			for tau := 1; tau <= t; tau++ {
				avail.Add(v.Avail[k][tau-1])
			}
			mb.AddEquality(v.Energized[task.Line][t-1], avail).
				WithName(fmt.Sprintf("energize[%s,%d]", id, t))
		}
	}

	// Topology freeze: every line holds its last build-step status
	// through the run phase.
	for l, line := range net.Lines {
		for t := hor.RunStart(); t <= hor.TotalSteps(); t++ {
			mb.AddEquality(v.Energized[l][t-1], v.Energized[l][H-1]).
				WithName(fmt.Sprintf("freeze[%s,%d]", line.ID, t))
		}
	}
}
