package restoration

import (
	"fmt"

	"github.com/distgrid/restomilp/milp"
)

// addRouting emits the crew-tour constraints over the routing nodes
// {depot} ∪ tasks: open tours starting at the depot, at most one visitor
// per picked task, and disjunctive arrival-time propagation along used
// arcs. Time propagation doubles as subtour elimination.
func (e *Engine) addRouting() {
	mb, v, cat := e.mb, e.v, e.Cat
	n := cat.NumNodes()
	M := e.Par.BigMHours

	for c, crew := range cat.Crews {
		// At most one tour per crew: one departure from and one return
		// to the depot.
		out := milp.NewLinearExpr()
		in := milp.NewLinearExpr()
		for j := 1; j < n; j++ {
			out.Add(v.Arc[ArcKey{c, 0, j}])
			in.Add(v.Arc[ArcKey{c, j, 0}])
		}
		mb.AddLinearConstraint(out, milp.AtMost(1)).
			WithName(fmt.Sprintf("routing_depot_out[%s]", crew.ID))
		mb.AddLinearConstraint(in, milp.AtMost(1)).
			WithName(fmt.Sprintf("routing_depot_in[%s]", crew.ID))

		// In-degree equals out-degree at every task node.
		for k := 1; k < n; k++ {
			inK := milp.NewLinearExpr()
			outK := milp.NewLinearExpr()
			for i := 0; i < n; i++ {
				if i == k {
					continue
				}
				inK.Add(v.Arc[ArcKey{c, i, k}])
				outK.Add(v.Arc[ArcKey{c, k, i}])
			}
			mb.AddEquality(inK, outK).
				WithName(fmt.Sprintf("routing_cons[%s,%d]", crew.ID, k))
		}
	}

	// A picked task is visited by exactly one crew; an unpicked one by
	// nobody.
	for k := 1; k < n; k++ {
		visits := milp.NewLinearExpr()
		for c := range cat.Crews {
			for i := 0; i < n; i++ {
				if i == k {
					continue
				}
				visits.Add(v.Arc[ArcKey{c, i, k}])
			}
		}
		mb.AddEquality(visits, v.Repair[k-1]).
			WithName(fmt.Sprintf("routing_visit[%d]", k))
	}

	// Arrival propagation: using arc (i,j) forces
	//   at[j] >= at[i] + service(i) + travel(i,j).
	// Relaxed by M when the arc is unused.
	for c, crew := range cat.Crews {
		for i := 0; i < n; i++ {
			for j := 1; j < n; j++ {
				if i == j {
					continue
				}
				arc := v.Arc[ArcKey{c, i, j}]
				lhs := milp.NewLinearExpr().
					Add(v.Arrival[j][c]).
					AddTerm(v.Arrival[i][c], -1).
					AddTerm(arc, -M)
				mb.AddLinearConstraint(lhs,
					milp.AtLeast(cat.ServiceHoursAt(i)+cat.TravelHours(i, j)-M)).
					WithName(fmt.Sprintf("routing_time[%s,%d,%d]", crew.ID, i, j))
			}
		}

		// A node the crew never reaches keeps a zero arrival.
		for k := 1; k < n; k++ {
			inK := milp.NewLinearExpr()
			for i := 0; i < n; i++ {
				if i != k {
					inK.Add(v.Arc[ArcKey{c, i, k}])
				}
			}
			ceil := milp.NewLinearExpr().
				Add(v.Arrival[k][c]).
				AddTerm(inK, -M)
			mb.AddLinearConstraint(ceil, milp.AtMost(0)).
				WithName(fmt.Sprintf("routing_unvisited[%s,%d]", crew.ID, k))
		}
	}
}
