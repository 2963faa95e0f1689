// Package milp offers a builder API for mixed-integer linear programs.
//
// The Builder struct accumulates variables and two-sided linear row
// constraints and provides helper methods for composing them. The Var
// struct is a reference to a specific variable in the model under
// construction. The LinearExpr struct provides helper methods for
// creating constraints and the objective from expressions with many
// variables and coefficients. Model() snapshots the finished program in
// a solver-neutral form; the glpksolve package translates it for GLPK
// and WriteLP serializes it for any LP-format reader.
package milp

import (
	"errors"
	"fmt"
	"math"

	log "github.com/golang/glog"
)

// ErrMixedModels holds the error when elements added to a model belong to
// different builders.
var ErrMixedModels = errors.New("elements are not part of the same model")

type (
	// VarIndex is the index of a variable in the model.
	VarIndex int32
	// RowIndex is the index of a row constraint in the model.
	RowIndex int32
)

// VarKind distinguishes continuous, general integer, and 0/1 variables.
type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
)

func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	}
	return fmt.Sprintf("VarKind(%d)", int(k))
}

// Bounds is the closed interval [Lo,Hi]. Either end may be infinite.
type Bounds struct {
	Lo float64
	Hi float64
}

// Free returns bounds open on both ends.
func Free() Bounds { return Bounds{math.Inf(-1), math.Inf(1)} }

// NonNegative returns the bounds [0,+inf).
func NonNegative() Bounds { return Bounds{0, math.Inf(1)} }

// AtMost returns the bounds (-inf,hi].
func AtMost(hi float64) Bounds { return Bounds{math.Inf(-1), hi} }

// AtLeast returns the bounds [lo,+inf).
func AtLeast(lo float64) Bounds { return Bounds{lo, math.Inf(1)} }

// Between returns the bounds [lo,hi].
func Between(lo, hi float64) Bounds { return Bounds{lo, hi} }

// Exactly returns the degenerate bounds [v,v].
func Exactly(v float64) Bounds { return Bounds{v, v} }

// IsFixed reports whether the interval contains a single point.
func (b Bounds) IsFixed() bool { return b.Lo == b.Hi }

// LinearArgument provides an interface for Var and LinearExpr.
type LinearArgument interface {
	addToLinearExpr(e *LinearExpr, c float64)
	evaluateSolutionValue(values []float64) float64
}

// LinearExpr is a container for a linear expression.
type LinearExpr struct {
	varCoeffs []varCoeff
	offset    float64
}

type varCoeff struct {
	ind   VarIndex
	coeff float64
}

// NewLinearExpr creates a new empty LinearExpr.
func NewLinearExpr() *LinearExpr {
	return &LinearExpr{}
}

// NewConstant creates and returns a LinearExpr containing the constant `c`.
func NewConstant(c float64) *LinearExpr {
	return &LinearExpr{offset: c}
}

// Add adds the linear argument term to the LinearExpr and returns itself.
func (l *LinearExpr) Add(la LinearArgument) *LinearExpr {
	l.AddTerm(la, 1)
	return l
}

// AddConstant adds the constant to the LinearExpr and returns itself.
func (l *LinearExpr) AddConstant(c float64) *LinearExpr {
	l.offset += c
	return l
}

// AddTerm adds the linear argument term with the given coefficient to the
// LinearExpr and returns itself.
func (l *LinearExpr) AddTerm(la LinearArgument, coeff float64) *LinearExpr {
	la.addToLinearExpr(l, coeff)
	return l
}

// AddSum adds the sum of the linear arguments to the LinearExpr and returns
// itself.
func (l *LinearExpr) AddSum(las ...LinearArgument) *LinearExpr {
	for _, la := range las {
		l.Add(la)
	}
	return l
}

// AddWeightedSum adds the linear arguments with the corresponding
// coefficients to the LinearExpr and returns itself.
func (l *LinearExpr) AddWeightedSum(las []LinearArgument, coeffs []float64) *LinearExpr {
	if len(coeffs) != len(las) {
		log.Fatalf("las and coeffs must be the same length: %v != %v", len(las), len(coeffs))
	}
	for i, la := range las {
		l.AddTerm(la, coeffs[i])
	}
	return l
}

// Offset returns the constant part of the expression.
func (l *LinearExpr) Offset() float64 { return l.offset }

func (l *LinearExpr) addToLinearExpr(e *LinearExpr, c float64) {
	for _, vc := range l.varCoeffs {
		e.varCoeffs = append(e.varCoeffs, varCoeff{ind: vc.ind, coeff: vc.coeff * c})
	}
	e.offset += l.offset * c
}

func (l *LinearExpr) evaluateSolutionValue(values []float64) float64 {
	result := l.offset
	for _, vc := range l.varCoeffs {
		result += values[vc.ind] * vc.coeff
	}
	return result
}

// terms merges duplicate variable references so that each variable appears
// at most once. Solver backends (GLPK among them) reject rows that mention
// the same column twice. First-seen order is preserved.
func (l *LinearExpr) terms() []Term {
	pos := make(map[VarIndex]int, len(l.varCoeffs))
	merged := make([]Term, 0, len(l.varCoeffs))
	for _, vc := range l.varCoeffs {
		if i, ok := pos[vc.ind]; ok {
			merged[i].Coeff += vc.coeff
			continue
		}
		pos[vc.ind] = len(merged)
		merged = append(merged, Term{Var: vc.ind, Coeff: vc.coeff})
	}
	return merged
}

// Var is a reference to a variable in the model.
type Var struct {
	ind VarIndex
	mb  *Builder
}

// Name returns the name of the variable.
func (v Var) Name() string {
	return v.mb.vars[v.ind].Name
}

// Index returns the index of the variable.
func (v Var) Index() VarIndex {
	return v.ind
}

// WithName sets the name of the variable.
func (v Var) WithName(s string) Var {
	v.mb.vars[v.ind].Name = s
	return v
}

// Bounds returns the bounds of the variable.
func (v Var) Bounds() Bounds {
	return v.mb.vars[v.ind].Bounds
}

// WithBounds replaces the bounds of the variable. Tightening a binary
// variable to [1,1] or [0,0] fixes its value without an extra row.
func (v Var) WithBounds(b Bounds) Var {
	v.mb.vars[v.ind].Bounds = b
	return v
}

// Kind returns the kind of the variable.
func (v Var) Kind() VarKind {
	return v.mb.vars[v.ind].Kind
}

func (v Var) addToLinearExpr(e *LinearExpr, c float64) {
	e.varCoeffs = append(e.varCoeffs, varCoeff{ind: v.ind, coeff: c})
}

func (v Var) evaluateSolutionValue(values []float64) float64 {
	return values[v.ind]
}

// Constraint is a reference to a row constraint in the model.
type Constraint struct {
	ind RowIndex
	mb  *Builder
}

// WithName sets the name of the constraint.
func (c Constraint) WithName(s string) Constraint {
	c.mb.rows[c.ind].Name = s
	return c
}

// Name returns the name of the constraint.
func (c Constraint) Name() string {
	return c.mb.rows[c.ind].Name
}

// Index returns the index of the constraint.
func (c Constraint) Index() RowIndex {
	return c.ind
}

// Term is one variable-coefficient pair of a row or of the objective.
type Term struct {
	Var   VarIndex
	Coeff float64
}

// VarDef describes one variable of a finished model.
type VarDef struct {
	Name   string
	Bounds Bounds
	Kind   VarKind
}

// Row describes one two-sided linear constraint of a finished model:
// Bounds.Lo <= sum(Terms) <= Bounds.Hi.
type Row struct {
	Name   string
	Bounds Bounds
	Terms  []Term
}

// Model is the solver-neutral snapshot of a built program. The objective
// is always a minimization; ObjOffset is a constant added to the reported
// objective value.
type Model struct {
	Name      string
	Vars      []VarDef
	Rows      []Row
	Objective []Term
	ObjOffset float64
}

// VarByName returns the index of the first variable with the given name,
// or a false second return when not found.
func (m *Model) VarByName(name string) (VarIndex, bool) {
	for i := range m.Vars {
		if m.Vars[i].Name == name {
			return VarIndex(i), true
		}
	}
	return 0, false
}

// RowByName returns the first row with the given name, or nil.
func (m *Model) RowByName(name string) *Row {
	for i := range m.Rows {
		if m.Rows[i].Name == name {
			return &m.Rows[i]
		}
	}
	return nil
}

// Builder accumulates the variables, rows, and objective of a model.
type Builder struct {
	name      string
	vars      []VarDef
	rows      []Row
	objective []Term
	objOffset float64
	// The first and only the first error is reported in Model.
	err error
}

// NewBuilder creates and returns a new model Builder.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// checkSameModelAndSetErrorf returns true if `mb` and `mb2` point to the same
// Builder. If false, an error with the message `format` is latched on `mb` if
// no earlier error is present.
func (mb *Builder) checkSameModelAndSetErrorf(mb2 *Builder, format string, a ...any) bool {
	if mb == mb2 {
		return true
	}
	args := make([]any, len(a)+1)
	copy(args, a)
	args[len(a)] = ErrMixedModels
	err := fmt.Errorf(format+": %w", args...)
	log.Errorf("%v", err)
	if mb.err == nil {
		mb.err = err
	}
	return false
}

func (mb *Builder) newVar(b Bounds, k VarKind) Var {
	v := Var{ind: VarIndex(len(mb.vars)), mb: mb}
	mb.vars = append(mb.vars, VarDef{Bounds: b, Kind: k})
	return v
}

// NewContinuousVar creates a new continuous variable with the given bounds.
func (mb *Builder) NewContinuousVar(b Bounds) Var {
	return mb.newVar(b, Continuous)
}

// NewIntegerVar creates a new integer variable with the given bounds.
func (mb *Builder) NewIntegerVar(b Bounds) Var {
	return mb.newVar(b, Integer)
}

// NewBinaryVar creates a new 0/1 variable.
func (mb *Builder) NewBinaryVar() Var {
	return mb.newVar(Bounds{0, 1}, Binary)
}

func (mb *Builder) exprOf(la LinearArgument) *LinearExpr {
	if v, ok := la.(Var); ok {
		mb.checkSameModelAndSetErrorf(v.mb, "Var %v used with foreign builder", v.Index())
	}
	return NewLinearExpr().Add(la)
}

// AddLinearConstraint adds the row constraint `b.Lo <= expr <= b.Hi`. The
// constant offset of `expr` is folded into the bounds.
func (mb *Builder) AddLinearConstraint(expr LinearArgument, b Bounds) Constraint {
	le := mb.exprOf(expr)
	row := Row{
		Bounds: Bounds{shiftBound(b.Lo, -le.offset), shiftBound(b.Hi, -le.offset)},
		Terms:  le.terms(),
	}
	ind := RowIndex(len(mb.rows))
	mb.rows = append(mb.rows, row)
	return Constraint{ind: ind, mb: mb}
}

func shiftBound(bound, delta float64) float64 {
	if math.IsInf(bound, 0) {
		return bound
	}
	return bound + delta
}

// AddEquality adds the row constraint `lhs == rhs`.
func (mb *Builder) AddEquality(lhs, rhs LinearArgument) Constraint {
	diff := NewLinearExpr().Add(lhs).AddTerm(rhs, -1)
	return mb.AddLinearConstraint(diff, Exactly(0))
}

// AddLessOrEqual adds the row constraint `lhs <= rhs`.
func (mb *Builder) AddLessOrEqual(lhs, rhs LinearArgument) Constraint {
	diff := NewLinearExpr().Add(lhs).AddTerm(rhs, -1)
	return mb.AddLinearConstraint(diff, AtMost(0))
}

// AddGreaterOrEqual adds the row constraint `lhs >= rhs`.
func (mb *Builder) AddGreaterOrEqual(lhs, rhs LinearArgument) Constraint {
	diff := NewLinearExpr().Add(lhs).AddTerm(rhs, -1)
	return mb.AddLinearConstraint(diff, AtLeast(0))
}

// Minimize sets a linear minimization objective, replacing any earlier one.
func (mb *Builder) Minimize(obj LinearArgument) {
	le := mb.exprOf(obj)
	mb.objective = le.terms()
	mb.objOffset = le.offset
}

// NumVars returns the number of variables added so far.
func (mb *Builder) NumVars() int { return len(mb.vars) }

// NumRows returns the number of row constraints added so far.
func (mb *Builder) NumRows() int { return len(mb.rows) }

// Model returns the built model. The slices of the returned Model alias the
// builder's internal state; modifying them and then continuing to use the
// builder may produce an invalid model.
//
// Model returns an error when invalid arguments were used during building
// (e.g. passing variables from other builders).
func (mb *Builder) Model() (*Model, error) {
	if mb.err != nil {
		return nil, mb.err
	}
	return &Model{
		Name:      mb.name,
		Vars:      mb.vars,
		Rows:      mb.rows,
		Objective: mb.objective,
		ObjOffset: mb.objOffset,
	}, nil
}

// SolutionValue returns the value of the linear argument `la` under the
// assignment `values`, which is indexed by VarIndex.
func SolutionValue(values []float64, la LinearArgument) float64 {
	return la.evaluateSolutionValue(values)
}
