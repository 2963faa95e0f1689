package restoration

import (
	"errors"
	"fmt"

	log "github.com/golang/glog"

	"github.com/distgrid/restomilp/milp"
)

// ErrBigMTooSmall rejects a configured big-M constant that does not
// dominate the bound it must relax. An undominated big-M silently cuts
// feasible solutions instead of deactivating a constraint.
var ErrBigMTooSmall = errors.New("big-M constant below required dominance bound")

// Engine holds the derived, immutable parameter snapshot of one problem
// instance and builds its MILP. The derivation pass runs entirely in
// NewEngine; Build only emits variables and constraints.
type Engine struct {
	Net *Network
	Hor *Horizon
	Dem *Demand
	Cat *Catalog
	Par Params

	mb *milp.Builder
	v  *Variables
}

// NewEngine runs the parameter derivation pass: validates the raw inputs,
// builds the topology indexes, demand snapshot, and catalog, fills
// parameter defaults, and checks big-M dominance bounds.
func NewEngine(inst *Instance) (*Engine, error) {
	p := inst.Params
	applyDefaults(&p)

	net, err := NewNetwork(inst.Buses, inst.Lines, inst.Configs, p.RootBus)
	if err != nil {
		return nil, err
	}
	hor, err := NewHorizon(p.BuildSteps, p.StepHours, p.ExtraDays)
	if err != nil {
		return nil, err
	}
	dem, err := NewDemand(net, hor, p.LoadShape)
	if err != nil {
		return nil, err
	}
	cat, err := NewCatalog(net, hor, inst.Resources, inst.Crews, inst.TravelHours, p)
	if err != nil {
		return nil, err
	}

	e := &Engine{Net: net, Hor: hor, Dem: dem, Cat: cat, Par: p}
	if err := e.resolveBigM(); err != nil {
		return nil, err
	}
	return e, nil
}

func applyDefaults(p *Params) {
	if p.RootBus == "" {
		p.RootBus = DefaultRootBus
	}
	if p.StepHours == 0 {
		p.StepHours = 1
	}
	if p.VoltMinPU == 0 {
		p.VoltMinPU = 0.9
	}
	if p.VoltMaxPU == 0 {
		p.VoltMaxPU = 1.1
	}
	if p.VoltageBaseKV == 0 {
		p.VoltageBaseKV = 4.16
	}
	if p.SubstationCapKW == 0 {
		p.SubstationCapKW = 1e5
	}
}

// resolveBigM derives defaults for the big-M constants and rejects
// configured values below their dominance bounds.
func (e *Engine) resolveBigM() error {
	// Routing: no feasible arrival exceeds the sum of all service times
	// plus one longest leg per node visited.
	var maxLeg float64
	n := e.Cat.NumNodes()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && e.Cat.TravelHours(i, j) > maxLeg {
				maxLeg = e.Cat.TravelHours(i, j)
			}
		}
	}
	var totalService float64
	for _, task := range e.Cat.Tasks {
		totalService += task.ServiceHours
	}
	hoursBound := totalService + float64(n)*maxLeg + e.Hor.Hour(e.Hor.BuildSteps)
	if e.Par.BigMHours == 0 {
		e.Par.BigMHours = hoursBound
	} else if e.Par.BigMHours < hoursBound {
		return fmt.Errorf("BigMHours %v < %v: %w", e.Par.BigMHours, hoursBound, ErrBigMTooSmall)
	}

	// Virtual flow: every bus sinks one unit, so an energized line never
	// carries more than the bus count.
	virtualBound := float64(e.Net.NumBuses())
	if e.Par.BigMVirtual == 0 {
		e.Par.BigMVirtual = virtualBound
	} else if e.Par.BigMVirtual < virtualBound {
		return fmt.Errorf("BigMVirtual %v < %v: %w", e.Par.BigMVirtual, virtualBound, ErrBigMTooSmall)
	}

	// KVL: the band must exceed the widest squared-voltage spread plus
	// the largest impedance-weighted flow term of any line.
	voltBound := e.Par.VoltMaxPU * e.Par.VoltMaxPU
	for l := range e.Net.Lines {
		var term float64
		for ph := Phase(0); ph < NumPhases; ph++ {
			for psi := Phase(0); psi < NumPhases; psi++ {
				cr, cx := e.kvlCoeffs(l, ph, psi)
				rating := e.Net.Lines[l].RatingKW
				term = maxf(term, (absf(cr)+absf(cx))*rating*float64(NumPhases))
			}
		}
		voltBound = maxf(voltBound, e.Par.VoltMaxPU*e.Par.VoltMaxPU+term)
	}
	if e.Par.BigMVoltSq == 0 {
		e.Par.BigMVoltSq = voltBound
	} else if e.Par.BigMVoltSq < voltBound {
		return fmt.Errorf("BigMVoltSq %v < %v: %w", e.Par.BigMVoltSq, voltBound, ErrBigMTooSmall)
	}
	return nil
}

// kvlCoeffs returns the pu² drop per kW (resp. kVAr) of flow on phase psi
// affecting the KVL row of phase ph of line l.
func (e *Engine) kvlCoeffs(l int, ph, psi Phase) (cr, cx float64) {
	line := e.Net.Lines[l]
	cfg := e.Net.LineConfig(l)
	// R,X are ohms per 1000 ft; flows are kW/kVAr; voltage base is kV.
	// 2·len·r·P / (kV² · 1000) yields volts² in per unit.
	scale := 2 * (line.LengthFt / 1000) / (e.Par.VoltageBaseKV * e.Par.VoltageBaseKV * 1000)
	return scale * cfg.R.At(int(ph), int(psi)), scale * cfg.X.At(int(ph), int(psi))
}

// Build assembles the objective and full constraint set and returns the
// model with its variable registry.
func (e *Engine) Build() (*milp.Model, *Variables, error) {
	e.mb = milp.NewBuilder("restoration")
	e.v = &Variables{}

	e.addVariables()
	e.addRouting()
	e.addStatusTracking()
	e.addResourceLimits()
	e.addPowerFlow()
	e.addRadiality()
	e.addFuel()
	e.addObjective()

	m, err := e.mb.Model()
	if err != nil {
		return nil, nil, err
	}
	log.V(1).Infof("built restoration model: %d vars, %d rows", len(m.Vars), len(m.Rows))
	return m, e.v, nil
}

// addVariables creates every decision variable. Statically known state is
// encoded through bounds: fixed line statuses, absent phases, pre-install
// resource output, and the root-bus voltage pin all collapse to degenerate
// intervals here rather than to extra rows.
func (e *Engine) addVariables() {
	mb, v := e.mb, e.v
	net, hor, cat, par := e.Net, e.Hor, e.Cat, e.Par
	H, T := hor.BuildSteps, hor.TotalSteps()

	v.Repair = make([]milp.Var, len(cat.Tasks))
	v.Avail = make([][]milp.Var, len(cat.Tasks))
	for k, task := range cat.Tasks {
		id := net.Lines[task.Line].ID
		v.Repair[k] = mb.NewBinaryVar().WithName(fmt.Sprintf("u[%s]", id))
		v.Avail[k] = make([]milp.Var, H)
		for t := 1; t <= H; t++ {
			v.Avail[k][t-1] = mb.NewBinaryVar().WithName(fmt.Sprintf("f[%s,%d]", id, t))
		}
	}

	v.Arc = make(map[ArcKey]milp.Var)
	nodes := cat.NumNodes()
	v.Arrival = make([][]milp.Var, nodes)
	for i := 0; i < nodes; i++ {
		v.Arrival[i] = make([]milp.Var, len(cat.Crews))
	}
	for c := range cat.Crews {
		for i := 0; i < nodes; i++ {
			b := milp.Between(0, par.BigMHours)
			if i == 0 {
				b = milp.Exactly(0) // depot arrival is fixed
			}
			v.Arrival[i][c] = mb.NewContinuousVar(b).
				WithName(fmt.Sprintf("at[%s,%d]", cat.Crews[c].ID, i))
			for j := 0; j < nodes; j++ {
				if i == j {
					continue
				}
				v.Arc[ArcKey{Crew: c, From: i, To: j}] = mb.NewBinaryVar().
					WithName(fmt.Sprintf("x[%s,%d,%d]", cat.Crews[c].ID, i, j))
			}
		}
	}

	v.Energized = make([][]milp.Var, net.NumLines())
	for l, line := range net.Lines {
		v.Energized[l] = make([]milp.Var, T)
		for t := 1; t <= T; t++ {
			ev := mb.NewBinaryVar().WithName(fmt.Sprintf("e[%s,%d]", line.ID, t))
			if b, fixed := fixedStatus(line); fixed {
				ev = ev.WithBounds(b)
			}
			v.Energized[l][t-1] = ev
		}
	}

	v.Served = make([][]milp.Var, net.NumBuses())
	for b, bus := range net.Buses {
		v.Served[b] = make([]milp.Var, T)
		for t := 1; t <= T; t++ {
			v.Served[b][t-1] = mb.NewBinaryVar().WithName(fmt.Sprintf("s[%s,%d]", bus.ID, t))
		}
	}

	v.FlowP = make([][][]milp.Var, net.NumLines())
	v.FlowQ = make([][][]milp.Var, net.NumLines())
	for l, line := range net.Lines {
		v.FlowP[l] = make([][]milp.Var, NumPhases)
		v.FlowQ[l] = make([][]milp.Var, NumPhases)
		for ph := Phase(0); ph < NumPhases; ph++ {
			bnd := milp.Between(-line.RatingKW, line.RatingKW)
			if !line.Phases[ph] {
				bnd = milp.Exactly(0)
			}
			v.FlowP[l][ph] = make([]milp.Var, T)
			for t := 1; t <= T; t++ {
				v.FlowP[l][ph][t-1] = mb.NewContinuousVar(bnd).
					WithName(fmt.Sprintf("P[%s,%v,%d]", line.ID, ph, t))
			}
			v.FlowQ[l][ph] = make([]milp.Var, H)
			for t := 1; t <= H; t++ {
				v.FlowQ[l][ph][t-1] = mb.NewContinuousVar(bnd).
					WithName(fmt.Sprintf("Q[%s,%v,%d]", line.ID, ph, t))
			}
		}
	}

	vmin, vmax := par.VoltMinPU*par.VoltMinPU, par.VoltMaxPU*par.VoltMaxPU
	v.VoltSq = make([][][]milp.Var, net.NumBuses())
	for b, bus := range net.Buses {
		v.VoltSq[b] = make([][]milp.Var, NumPhases)
		for ph := Phase(0); ph < NumPhases; ph++ {
			bnd := milp.Between(vmin, vmax)
			switch {
			case !bus.Phases[ph]:
				bnd = milp.Exactly(0)
			case b == net.Root:
				bnd = milp.Exactly(1) // nominal pin, every build step
			}
			v.VoltSq[b][ph] = make([]milp.Var, H)
			for t := 1; t <= H; t++ {
				v.VoltSq[b][ph][t-1] = mb.NewContinuousVar(bnd).
					WithName(fmt.Sprintf("V[%s,%v,%d]", bus.ID, ph, t))
			}
		}
	}

	v.SubP = make([][]milp.Var, NumPhases)
	v.SubQ = make([][]milp.Var, NumPhases)
	for ph := Phase(0); ph < NumPhases; ph++ {
		v.SubP[ph] = make([]milp.Var, T)
		for t := 1; t <= T; t++ {
			v.SubP[ph][t-1] = mb.NewContinuousVar(milp.Between(0, par.SubstationCapKW)).
				WithName(fmt.Sprintf("subP[%v,%d]", ph, t))
		}
		v.SubQ[ph] = make([]milp.Var, H)
		for t := 1; t <= H; t++ {
			v.SubQ[ph][t-1] = mb.NewContinuousVar(milp.Between(0, par.SubstationCapKW)).
				WithName(fmt.Sprintf("subQ[%v,%d]", ph, t))
		}
	}

	v.Install = make([]milp.Var, len(cat.Resources))
	v.ResP = make([][][]milp.Var, len(cat.Resources))
	v.ResQ = make([][][]milp.Var, len(cat.Resources))
	v.Fuel = make([]milp.Var, len(cat.Resources))
	for r, res := range cat.Resources {
		v.Install[r] = mb.NewBinaryVar().WithName(fmt.Sprintf("z[%s]", res.ID))
		v.ResP[r] = make([][]milp.Var, NumPhases)
		v.ResQ[r] = make([][]milp.Var, NumPhases)
		for ph := Phase(0); ph < NumPhases; ph++ {
			v.ResP[r][ph] = make([]milp.Var, T)
			for t := 1; t <= T; t++ {
				bnd := milp.Between(0, res.RatingKW[ph])
				if hor.IsBuild(t) && t < res.AvailableFrom {
					bnd = milp.Exactly(0) // install-time gate
				}
				v.ResP[r][ph][t-1] = mb.NewContinuousVar(bnd).
					WithName(fmt.Sprintf("resP[%s,%v,%d]", res.ID, ph, t))
			}
			v.ResQ[r][ph] = make([]milp.Var, H)
			for t := 1; t <= H; t++ {
				bnd := milp.Between(0, res.RatingKVAR[ph])
				if t < res.AvailableFrom {
					bnd = milp.Exactly(0)
				}
				v.ResQ[r][ph][t-1] = mb.NewContinuousVar(bnd).
					WithName(fmt.Sprintf("resQ[%s,%v,%d]", res.ID, ph, t))
			}
		}
		fb := milp.Between(0, cat.FuelMax[r])
		if res.Kind != ResourceGenerator {
			fb = milp.Exactly(0)
		}
		v.Fuel[r] = mb.NewContinuousVar(fb).WithName(fmt.Sprintf("fuel[%s]", res.ID))
	}

	v.OrientFwd = make([][]milp.Var, net.NumLines())
	v.OrientRev = make([][]milp.Var, net.NumLines())
	v.VFlow = make([][]milp.Var, net.NumLines())
	for l, line := range net.Lines {
		v.OrientFwd[l] = make([]milp.Var, H)
		v.OrientRev[l] = make([]milp.Var, H)
		v.VFlow[l] = make([]milp.Var, H)
		for t := 1; t <= H; t++ {
			v.OrientFwd[l][t-1] = mb.NewBinaryVar().WithName(fmt.Sprintf("bfwd[%s,%d]", line.ID, t))
			v.OrientRev[l][t-1] = mb.NewBinaryVar().WithName(fmt.Sprintf("brev[%s,%d]", line.ID, t))
			v.VFlow[l][t-1] = mb.NewContinuousVar(milp.Between(-par.BigMVirtual, par.BigMVirtual)).
				WithName(fmt.Sprintf("vf[%s,%d]", line.ID, t))
		}
	}

	v.VRootArc = make([][]milp.Var, net.NumBuses())
	v.VRootIn = make([][]milp.Var, net.NumBuses())
	for b, bus := range net.Buses {
		v.VRootArc[b] = make([]milp.Var, H)
		v.VRootIn[b] = make([]milp.Var, H)
		for t := 1; t <= H; t++ {
			rv := mb.NewBinaryVar().WithName(fmt.Sprintf("rho[%s,%d]", bus.ID, t))
			if b == net.Root {
				rv = rv.WithBounds(milp.Exactly(1))
			}
			v.VRootArc[b][t-1] = rv
			v.VRootIn[b][t-1] = mb.NewContinuousVar(milp.Between(0, par.BigMVirtual)).
				WithName(fmt.Sprintf("vroot[%s,%d]", bus.ID, t))
		}
	}
}

// fixedStatus returns the pinned energization bounds of non-task lines.
func fixedStatus(line Line) (milp.Bounds, bool) {
	switch line.Kind {
	case LineFixed, LineRegulator:
		return milp.Exactly(1), true
	case LineDamagedUnrepairable:
		return milp.Exactly(0), true
	case LineSwitch:
		if line.Closed {
			return milp.Exactly(1), true
		}
		return milp.Exactly(0), true
	}
	return milp.Bounds{}, false
}

// addResourceLimits caps installs per kind, caps new-line builds, and ties
// resource output to the install decision.
func (e *Engine) addResourceLimits() {
	mb, v := e.mb, e.v
	par, hor := e.Par, e.Hor

	subs := milp.NewLinearExpr()
	gens := milp.NewLinearExpr()
	for r, res := range e.Cat.Resources {
		if res.Kind == ResourceSubstation {
			subs.Add(v.Install[r])
		} else {
			gens.Add(v.Install[r])
		}
	}
	mb.AddLinearConstraint(subs, milp.AtMost(float64(par.MaxSubstations))).WithName("cap_subs")
	mb.AddLinearConstraint(gens, milp.AtMost(float64(par.MaxGenerators))).WithName("cap_gens")

	builds := milp.NewLinearExpr()
	for k, task := range e.Cat.Tasks {
		if e.Net.Lines[task.Line].Kind == LineCandidate {
			builds.Add(v.Repair[k])
		}
	}
	mb.AddLinearConstraint(builds, milp.AtMost(float64(par.MaxNewLines))).WithName("cap_lines")

	for r, res := range e.Cat.Resources {
		for ph := Phase(0); ph < NumPhases; ph++ {
			for t := 1; t <= hor.TotalSteps(); t++ {
				gate := milp.NewLinearExpr().AddTerm(v.Install[r], res.RatingKW[ph])
				mb.AddLessOrEqual(v.ResP[r][ph][t-1], gate).
					WithName(fmt.Sprintf("res_p_cap[%s,%v,%d]", res.ID, ph, t))
			}
			for t := 1; t <= hor.BuildSteps; t++ {
				gate := milp.NewLinearExpr().AddTerm(v.Install[r], res.RatingKVAR[ph])
				mb.AddLessOrEqual(v.ResQ[r][ph][t-1], gate).
					WithName(fmt.Sprintf("res_q_cap[%s,%v,%d]", res.ID, ph, t))
			}
		}
	}
}

// addObjective prices installs, repairs/builds, crew travel, generator
// fuel burn, and unserved energy, with run-phase terms weighted by the
// day multiplier.
func (e *Engine) addObjective() {
	v, hor, par := e.v, e.Hor, e.Par
	obj := milp.NewLinearExpr()

	for r, res := range e.Cat.Resources {
		obj.AddTerm(v.Install[r], res.InstallCost)
	}
	for k, task := range e.Cat.Tasks {
		obj.AddTerm(v.Repair[k], task.Cost)
	}
	n := e.Cat.NumNodes()
	for c := range e.Cat.Crews {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				arc := v.Arc[ArcKey{Crew: c, From: i, To: j}]
				obj.AddTerm(arc, par.TravelCostPerHour*e.Cat.TravelHours(i, j))
			}
		}
	}

	fuelRate := par.FuelPricePerGallon * par.GallonsPerKWh * hor.StepHours
	for r, res := range e.Cat.Resources {
		if res.Kind != ResourceGenerator {
			continue
		}
		for ph := Phase(0); ph < NumPhases; ph++ {
			for t := 1; t <= hor.TotalSteps(); t++ {
				obj.AddTerm(v.ResP[r][ph][t-1], fuelRate*hor.DayWeight(t))
			}
		}
	}

	// Unserved energy: VOLL·D·(1-s) contributes a constant plus a
	// negative service term.
	for b := range e.Net.Buses {
		for t := 1; t <= hor.TotalSteps(); t++ {
			kwh := e.Dem.TotalActiveKW(b, t) * hor.StepHours * hor.DayWeight(t)
			obj.AddConstant(par.VOLLPerKWh * kwh)
			obj.AddTerm(v.Served[b][t-1], -par.VOLLPerKWh*kwh)
		}
	}

	e.mb.Minimize(obj)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
