package restoration

import (
	"fmt"

	"github.com/distgrid/restomilp/milp"
)

// addRadiality keeps every build-step topology a forest. Each energized
// line picks exactly one of two parent orientations, and every bus has one
// parent slot shared between the real orientations and a virtual-root arc.
// A virtual single-commodity flow in which every bus sinks one unit, lines
// carry flow only while energized, and injection happens only through a
// taken virtual-root arc then rules cycles out: a cycle fills every parent
// slot on it with real orientations, leaving no arc to inject through, so
// its unit demands cannot be met. The substation bus always holds its
// virtual-root arc; a bus cut off from every source roots itself.
func (e *Engine) addRadiality() {
	mb, v := e.mb, e.v
	net, hor := e.Net, e.Hor
	M := e.Par.BigMVirtual

	for t := 1; t <= hor.BuildSteps; t++ {
		for l, line := range net.Lines {
			// Orientation choice tracks energization.
			pick := milp.NewLinearExpr().
				Add(v.OrientFwd[l][t-1]).
				Add(v.OrientRev[l][t-1])
			mb.AddEquality(pick, v.Energized[l][t-1]).
				WithName(fmt.Sprintf("orient[%s,%d]", line.ID, t))

			// Virtual flow rides only energized lines.
			up := milp.NewLinearExpr().
				Add(v.VFlow[l][t-1]).
				AddTerm(v.Energized[l][t-1], -M)
			mb.AddLinearConstraint(up, milp.AtMost(0)).
				WithName(fmt.Sprintf("vflow_up[%s,%d]", line.ID, t))
			lo := milp.NewLinearExpr().
				Add(v.VFlow[l][t-1]).
				AddTerm(v.Energized[l][t-1], M)
			mb.AddLinearConstraint(lo, milp.AtLeast(0)).
				WithName(fmt.Sprintf("vflow_lo[%s,%d]", line.ID, t))
		}

		for b, bus := range net.Buses {
			// One parent slot per bus, shared with the virtual-root arc.
			// The substation's slot is taken by its pinned arc, so no
			// real orientation may point at it.
			parents := milp.NewLinearExpr().Add(v.VRootArc[b][t-1])
			for _, l := range net.In[b] {
				parents.Add(v.OrientFwd[l][t-1])
			}
			for _, l := range net.Out[b] {
				parents.Add(v.OrientRev[l][t-1])
			}
			mb.AddLinearConstraint(parents, milp.AtMost(1)).
				WithName(fmt.Sprintf("parent[%s,%d]", bus.ID, t))

			// Injection only through a taken virtual-root arc.
			gate := milp.NewLinearExpr().AddTerm(v.VRootArc[b][t-1], M)
			mb.AddLessOrEqual(v.VRootIn[b][t-1], gate).
				WithName(fmt.Sprintf("vroot_cap[%s,%d]", bus.ID, t))

			// Every bus sinks one unit of virtual flow.
			bal := milp.NewLinearExpr().Add(v.VRootIn[b][t-1])
			for _, l := range net.In[b] {
				bal.Add(v.VFlow[l][t-1])
			}
			for _, l := range net.Out[b] {
				bal.AddTerm(v.VFlow[l][t-1], -1)
			}
			mb.AddLinearConstraint(bal, milp.Exactly(1)).
				WithName(fmt.Sprintf("vbalance[%s,%d]", bus.ID, t))
		}
	}
}
