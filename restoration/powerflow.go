package restoration

import (
	"fmt"

	"github.com/distgrid/restomilp/milp"
)

// Regulator voltage-ratio band, squared: taps from 0.9 to 1.1.
const (
	regRatioSqLo = 0.81
	regRatioSqHi = 1.21
)

// addPowerFlow emits the electrical constraints. Build steps carry the full
// linearized physics: per-phase active and reactive balance, big-M gated
// KVL voltage drops, and regulator bands. Run steps keep only per-phase
// active balance on the frozen topology. Flow on a de-energized line is
// forced to zero by rating-scaled gates.
func (e *Engine) addPowerFlow() {
	e.addBalance()
	e.addFlowGates()
	e.addKVL()
}

// addBalance books per-bus, per-phase power conservation. Served demand
// scales with the bus's service indicator; the root bus additionally
// receives the substation transfer and resource buses their installed
// resource output.
func (e *Engine) addBalance() {
	mb, v := e.mb, e.v
	net, hor, dem := e.Net, e.Hor, e.Dem

	resAt := make(map[int][]int)
	for r, b := range e.Cat.ResourceBus {
		resAt[b] = append(resAt[b], r)
	}

	for b, bus := range net.Buses {
		for ph := Phase(0); ph < NumPhases; ph++ {
			if !bus.Phases[ph] {
				continue
			}
			for t := 1; t <= hor.TotalSteps(); t++ {
				inj := milp.NewLinearExpr()
				for _, l := range net.In[b] {
					inj.Add(v.FlowP[l][ph][t-1])
				}
				for _, l := range net.Out[b] {
					inj.AddTerm(v.FlowP[l][ph][t-1], -1)
				}
				if b == net.Root {
					inj.Add(v.SubP[ph][t-1])
				}
				for _, r := range resAt[b] {
					inj.Add(v.ResP[r][ph][t-1])
				}
				inj.AddTerm(v.Served[b][t-1], -dem.ActiveKW(b, ph, t))
				mb.AddLinearConstraint(inj, milp.Exactly(0)).
					WithName(fmt.Sprintf("bal_p[%s,%v,%d]", bus.ID, ph, t))

				if !hor.IsBuild(t) {
					continue
				}
				rnj := milp.NewLinearExpr()
				for _, l := range net.In[b] {
					rnj.Add(v.FlowQ[l][ph][t-1])
				}
				for _, l := range net.Out[b] {
					rnj.AddTerm(v.FlowQ[l][ph][t-1], -1)
				}
				if b == net.Root {
					rnj.Add(v.SubQ[ph][t-1])
				}
				for _, r := range resAt[b] {
					rnj.Add(v.ResQ[r][ph][t-1])
				}
				rnj.AddTerm(v.Served[b][t-1], -dem.ReactiveKVAR(b, ph, t))
				mb.AddLinearConstraint(rnj, milp.Exactly(0)).
					WithName(fmt.Sprintf("bal_q[%s,%v,%d]", bus.ID, ph, t))
			}
		}
	}
}

// addFlowGates forces flow to zero on de-energized lines:
// |flow| <= rating * e.
func (e *Engine) addFlowGates() {
	mb, v := e.mb, e.v
	net, hor := e.Net, e.Hor

	for l, line := range net.Lines {
		for ph := Phase(0); ph < NumPhases; ph++ {
			if !line.Phases[ph] {
				continue
			}
			for t := 1; t <= hor.TotalSteps(); t++ {
				gate := milp.NewLinearExpr().AddTerm(v.Energized[l][t-1], line.RatingKW)
				mb.AddLessOrEqual(v.FlowP[l][ph][t-1], gate).
					WithName(fmt.Sprintf("flow_p_up[%s,%v,%d]", line.ID, ph, t))
				lo := milp.NewLinearExpr().AddTerm(v.Energized[l][t-1], -line.RatingKW)
				mb.AddGreaterOrEqual(v.FlowP[l][ph][t-1], lo).
					WithName(fmt.Sprintf("flow_p_lo[%s,%v,%d]", line.ID, ph, t))
			}
			for t := 1; t <= hor.BuildSteps; t++ {
				gate := milp.NewLinearExpr().AddTerm(v.Energized[l][t-1], line.RatingKW)
				mb.AddLessOrEqual(v.FlowQ[l][ph][t-1], gate).
					WithName(fmt.Sprintf("flow_q_up[%s,%v,%d]", line.ID, ph, t))
				lo := milp.NewLinearExpr().AddTerm(v.Energized[l][t-1], -line.RatingKW)
				mb.AddGreaterOrEqual(v.FlowQ[l][ph][t-1], lo).
					WithName(fmt.Sprintf("flow_q_lo[%s,%v,%d]", line.ID, ph, t))
			}
		}
	}
}

// addKVL books the linearized voltage-drop relation per energized line,
// phase, and build step,
//
//	V[to] = V[from] - sum_psi (cr*P[psi] + cx*Q[psi]),
//
// relaxed by BigMVoltSq on de-energized lines. Regulator lines replace the
// drop with a tap-ratio band on the squared voltages.
func (e *Engine) addKVL() {
	mb, v := e.mb, e.v
	net, hor := e.Net, e.Hor
	M := e.Par.BigMVoltSq

	for l, line := range net.Lines {
		from, to := net.Endpoints(l)
		for ph := Phase(0); ph < NumPhases; ph++ {
			if !line.Phases[ph] {
				continue
			}
			for t := 1; t <= hor.BuildSteps; t++ {
				if line.Kind == LineRegulator {
					up := milp.NewLinearExpr().
						Add(v.VoltSq[to][ph][t-1]).
						AddTerm(v.VoltSq[from][ph][t-1], -regRatioSqHi)
					mb.AddLinearConstraint(up, milp.AtMost(0)).
						WithName(fmt.Sprintf("reg_up[%s,%v,%d]", line.ID, ph, t))
					lo := milp.NewLinearExpr().
						Add(v.VoltSq[to][ph][t-1]).
						AddTerm(v.VoltSq[from][ph][t-1], -regRatioSqLo)
					mb.AddLinearConstraint(lo, milp.AtLeast(0)).
						WithName(fmt.Sprintf("reg_lo[%s,%v,%d]", line.ID, ph, t))
					continue
				}

				drop := milp.NewLinearExpr().
					Add(v.VoltSq[from][ph][t-1]).
					AddTerm(v.VoltSq[to][ph][t-1], -1)
				for psi := Phase(0); psi < NumPhases; psi++ {
					if !line.Phases[psi] {
						continue
					}
					cr, cx := e.kvlCoeffs(l, ph, psi)
					drop.AddTerm(v.FlowP[l][psi][t-1], -cr)
					drop.AddTerm(v.FlowQ[l][psi][t-1], -cx)
				}

				up := milp.NewLinearExpr().Add(drop).AddTerm(v.Energized[l][t-1], M)
				mb.AddLinearConstraint(up, milp.AtMost(M)).
					WithName(fmt.Sprintf("kvl_up[%s,%v,%d]", line.ID, ph, t))
				lo := milp.NewLinearExpr().Add(drop).AddTerm(v.Energized[l][t-1], -M)
				mb.AddLinearConstraint(lo, milp.AtLeast(-M)).
					WithName(fmt.Sprintf("kvl_lo[%s,%v,%d]", line.ID, ph, t))
			}
		}
	}
}
