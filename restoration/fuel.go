package restoration

import (
	"fmt"

	"github.com/distgrid/restomilp/milp"
)

// addFuel books the generator fuel accounting: an installed generator's
// allocation sits between its minimum-run and full-horizon sizings, the
// portfolio allocation stays within the aggregate budget, and dispatched
// energy converted at the gallons-per-kWh rate stays within the
// allocation. Uninstalled generators have both allocation bounds forced
// to zero through the install gate.
func (e *Engine) addFuel() {
	mb, v := e.mb, e.v
	hor, cat, par := e.Hor, e.Cat, e.Par

	total := milp.NewLinearExpr()
	for r, res := range cat.Resources {
		if res.Kind != ResourceGenerator {
			continue
		}
		total.Add(v.Fuel[r])

		lo := milp.NewLinearExpr().
			Add(v.Fuel[r]).
			AddTerm(v.Install[r], -cat.FuelMin[r])
		mb.AddLinearConstraint(lo, milp.AtLeast(0)).
			WithName(fmt.Sprintf("fuel_min[%s]", res.ID))
		up := milp.NewLinearExpr().
			Add(v.Fuel[r]).
			AddTerm(v.Install[r], -cat.FuelMax[r])
		mb.AddLinearConstraint(up, milp.AtMost(0)).
			WithName(fmt.Sprintf("fuel_max[%s]", res.ID))

		// gamma * sum_t weight(t) * dt * sum_ph P <= allocation.
		burn := milp.NewLinearExpr().AddTerm(v.Fuel[r], -1)
		rate := par.GallonsPerKWh * hor.StepHours
		for ph := Phase(0); ph < NumPhases; ph++ {
			for t := 1; t <= hor.TotalSteps(); t++ {
				burn.AddTerm(v.ResP[r][ph][t-1], rate*hor.DayWeight(t))
			}
		}
		mb.AddLinearConstraint(burn, milp.AtMost(0)).
			WithName(fmt.Sprintf("fuel_burn[%s]", res.ID))
	}
	mb.AddLinearConstraint(total, milp.AtMost(cat.FuelBudget)).
		WithName("fuel_budget")
}
