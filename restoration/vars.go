package restoration

import "github.com/distgrid/restomilp/milp"

// ArcKey identifies one directed routing arc of one crew.
type ArcKey struct {
	Crew int
	From int
	To   int
}

// Variables is the registry of decision variables of one built model,
// used to read the solver's assignment back and by the property tests.
// Step-indexed slices are 0-based over 1-based steps (entry t-1 holds
// step t); build-only slices stop at H.
type Variables struct {
	// Repair is the repair/build decision per task.
	Repair []milp.Var
	// Arc holds the crew tour arcs over {depot} ∪ tasks; no self arcs.
	Arc map[ArcKey]milp.Var
	// Arrival is the crew arrival hour per routing node, [node][crew].
	Arrival [][]milp.Var
	// Avail is the availability pick per task and build step.
	Avail [][]milp.Var
	// Energized is the per-line, per-step energization status.
	Energized [][]milp.Var
	// Served is the load-service indicator per bus and step.
	Served [][]milp.Var

	// FlowP is active line flow in kW, [line][phase][step].
	FlowP [][][]milp.Var
	// FlowQ is reactive line flow in kVAr, build steps only.
	FlowQ [][][]milp.Var
	// VoltSq is squared bus voltage in pu², build steps only.
	VoltSq [][][]milp.Var
	// SubP/SubQ are root-substation transfer per phase and step.
	SubP [][]milp.Var
	SubQ [][]milp.Var

	// Install is the install decision per candidate resource.
	Install []milp.Var
	// ResP/ResQ are portable resource output, [resource][phase][step].
	ResP [][][]milp.Var
	ResQ [][][]milp.Var
	// Fuel is the fuel allocation per resource, in gallons; fixed to
	// zero for substations.
	Fuel []milp.Var

	// OrientFwd/OrientRev are the two parent orientations of a line per
	// build step: forward means From is the parent of To.
	OrientFwd [][]milp.Var
	OrientRev [][]milp.Var
	// VFlow is the virtual single-commodity flow per line and build step.
	VFlow [][]milp.Var
	// VRootArc is the virtual-root parent arc per bus and build step; it
	// competes with the real parent orientations for the bus's single
	// parent slot. Fixed to one for the substation bus.
	VRootArc [][]milp.Var
	// VRootIn is the virtual-root injection per bus and build step,
	// gated by VRootArc.
	VRootIn [][]milp.Var
}
