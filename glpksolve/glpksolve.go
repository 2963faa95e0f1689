// Package glpksolve runs milp models through the GNU Linear Programming Kit.
//
// The adapter treats the solve as an opaque, synchronous call: it loads the
// finished model into a GLPK problem object, runs the simplex relaxation and
// then the branch-and-cut integer optimizer, and maps the verdict back onto
// the model's variables. Infeasibility is a result, not an error; errors are
// reserved for solver malfunction.
package glpksolve

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/lukpank/go-glpk/glpk"

	"github.com/distgrid/restomilp/milp"
)

// Status classifies the solver verdict.
type Status int

const (
	// StatusOptimal means the assignment is proven optimal.
	StatusOptimal Status = iota
	// StatusFeasible means a feasible assignment was found but optimality
	// was not proven; Result.Gap bounds the remaining distance.
	StatusFeasible
	// StatusInfeasible means the constraint system has no solution.
	StatusInfeasible
	// StatusNoSolution means the solver terminated without an assignment
	// and without proving infeasibility.
	StatusNoSolution
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusNoSolution:
		return "no solution"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result holds the solver verdict for one model.
type Result struct {
	Status    Status
	Objective float64
	// Gap is the relative distance between the integer objective and the
	// LP relaxation bound. Zero when the solution is proven optimal.
	Gap float64
	// Values is the variable assignment, indexed by milp.VarIndex. Nil
	// unless Status is StatusOptimal or StatusFeasible.
	Values []float64
}

// Solve minimizes the model and returns the verdict.
func Solve(m *milp.Model) (*Result, error) {
	lp := glpk.New()
	defer lp.Delete()
	lp.SetProbName(m.Name)
	lp.SetObjDir(glpk.ObjDir(glpk.MIN))

	loadColumns(lp, m)
	loadRows(lp, m)
	for _, t := range m.Objective {
		lp.SetObjCoef(int(t.Var)+1, t.Coeff)
	}
	// Column 0 carries the objective's constant term.
	lp.SetObjCoef(0, m.ObjOffset)

	smcp := glpk.NewSmcp()
	smcp.SetMsgLev(glpk.MsgLev(glpk.MSG_ERR))
	if err := lp.Simplex(smcp); err != nil {
		return nil, fmt.Errorf("simplex failed: %w", err)
	}
	if st := lp.Status(); st != glpk.OPT && st != glpk.FEAS {
		log.V(1).Infof("%s: relaxation status %v, no integer solve attempted", m.Name, st)
		// Only a proven-empty feasible region is infeasibility. An
		// unbounded or undefined relaxation is a distinct verdict.
		if st == glpk.NOFEAS {
			return &Result{Status: StatusInfeasible}, nil
		}
		return &Result{Status: StatusNoSolution}, nil
	}
	relaxBound := lp.ObjVal()

	iocp := glpk.NewIocp()
	iocp.SetMsgLev(glpk.MsgLev(glpk.MSG_ERR))
	if err := lp.Intopt(iocp); err != nil {
		// Intopt reports "no feasible solution" through an error even
		// when the relaxation was fine; fold it into the status.
		if lp.MipStatus() == glpk.NOFEAS {
			return &Result{Status: StatusInfeasible}, nil
		}
		return nil, fmt.Errorf("integer optimizer failed: %w", err)
	}

	switch st := lp.MipStatus(); st {
	case glpk.OPT:
		return assignment(lp, m, StatusOptimal, 0), nil
	case glpk.FEAS:
		obj := lp.MipObjVal()
		gap := math.Abs(obj-relaxBound) / math.Max(math.Abs(obj), 1e-10)
		return assignment(lp, m, StatusFeasible, gap), nil
	case glpk.NOFEAS:
		return &Result{Status: StatusInfeasible}, nil
	default:
		log.V(1).Infof("%s: integer status %v", m.Name, st)
		return &Result{Status: StatusNoSolution}, nil
	}
}

func assignment(lp *glpk.Prob, m *milp.Model, st Status, gap float64) *Result {
	values := make([]float64, len(m.Vars))
	for i := range m.Vars {
		values[i] = lp.MipColVal(i + 1)
	}
	return &Result{
		Status:    st,
		Objective: lp.MipObjVal(),
		Gap:       gap,
		Values:    values,
	}
}

func loadColumns(lp *glpk.Prob, m *milp.Model) {
	lp.AddCols(len(m.Vars))
	for i, v := range m.Vars {
		j := i + 1
		if v.Name != "" {
			lp.SetColName(j, v.Name)
		}
		// GLPK's BV kind forces [0,1] bounds; a binary fixed by its
		// bounds is loaded as a general integer instead.
		switch {
		case v.Kind == milp.Binary && v.Bounds == (milp.Bounds{Lo: 0, Hi: 1}):
			lp.SetColKind(j, glpk.VarType(glpk.BV))
		case v.Kind == milp.Binary || v.Kind == milp.Integer:
			lp.SetColKind(j, glpk.VarType(glpk.IV))
			setBounds(lp.SetColBnds, j, v.Bounds)
		default:
			lp.SetColKind(j, glpk.VarType(glpk.CV))
			setBounds(lp.SetColBnds, j, v.Bounds)
		}
	}
}

func loadRows(lp *glpk.Prob, m *milp.Model) {
	if len(m.Rows) == 0 {
		return
	}
	lp.AddRows(len(m.Rows))
	for i, r := range m.Rows {
		j := i + 1
		if r.Name != "" {
			lp.SetRowName(j, r.Name)
		}
		setBounds(lp.SetRowBnds, j, r.Bounds)
		// A termless row (a vacuously satisfied bound) has nothing to
		// load into the matrix.
		if len(r.Terms) == 0 {
			continue
		}
		// SetMatRow keeps GLPK's 1-based array convention: element 0
		// of ind and val is ignored.
		ind := make([]int32, len(r.Terms)+1)
		val := make([]float64, len(r.Terms)+1)
		for k, t := range r.Terms {
			ind[k+1] = int32(t.Var) + 1
			val[k+1] = t.Coeff
		}
		lp.SetMatRow(j, ind, val)
	}
}

func setBounds(set func(int, glpk.BndsType, float64, float64), j int, b milp.Bounds) {
	loOpen, hiOpen := math.IsInf(b.Lo, -1), math.IsInf(b.Hi, 1)
	switch {
	case loOpen && hiOpen:
		set(j, glpk.BndsType(glpk.FR), 0, 0)
	case loOpen:
		set(j, glpk.BndsType(glpk.UP), 0, b.Hi)
	case hiOpen:
		set(j, glpk.BndsType(glpk.LO), b.Lo, 0)
	case b.IsFixed():
		set(j, glpk.BndsType(glpk.FX), b.Lo, b.Hi)
	default:
		set(j, glpk.BndsType(glpk.DB), b.Lo, b.Hi)
	}
}
