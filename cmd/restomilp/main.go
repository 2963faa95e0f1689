// Command restomilp builds the restoration-planning MILP for a problem
// instance, optionally exports it in LP format, and optionally solves it
// with GLPK, printing a JSON run summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/distgrid/restomilp/glpksolve"
	"github.com/distgrid/restomilp/inputs"
	"github.com/distgrid/restomilp/milp"
	"github.com/distgrid/restomilp/restoration"
)

var (
	inputPath = flag.String("input", "", "instance YAML path (required)")
	lpPath    = flag.String("lp", "", "write the model in LP format to this path")
	solve     = flag.Bool("solve", false, "solve the model with GLPK")
)

type summary struct {
	RunID     string              `json:"run_id"`
	Vars      int                 `json:"vars"`
	Rows      int                 `json:"rows"`
	Status    string              `json:"status,omitempty"`
	Objective float64             `json:"objective,omitempty"`
	Gap       float64             `json:"gap,omitempty"`
	Installed []string            `json:"installed,omitempty"`
	Repaired  []string            `json:"repaired,omitempty"`
	Tours     map[string][]string `json:"tours,omitempty"`
}

func main() {
	flag.Parse()
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: restomilp -input instance.yaml [-lp out.lp] [-solve]")
		os.Exit(2)
	}
	if err := run(); err != nil {
		log.Exitf("restomilp: %v", err)
	}
}

func run() error {
	inst, err := inputs.Load(*inputPath)
	if err != nil {
		return err
	}
	eng, err := restoration.NewEngine(inst)
	if err != nil {
		return err
	}
	m, vars, err := eng.Build()
	if err != nil {
		return err
	}

	sum := summary{
		RunID: uuid.NewString(),
		Vars:  len(m.Vars),
		Rows:  len(m.Rows),
	}
	log.Infof("run %s: %d vars, %d rows", sum.RunID, sum.Vars, sum.Rows)

	if *lpPath != "" {
		f, err := os.Create(*lpPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := milp.WriteLP(f, m); err != nil {
			return fmt.Errorf("writing %s: %w", *lpPath, err)
		}
	}

	if *solve {
		res, err := glpksolve.Solve(m)
		if err != nil {
			return err
		}
		sum.Status = res.Status.String()
		sum.Objective = res.Objective
		sum.Gap = res.Gap
		if res.Status == glpksolve.StatusOptimal || res.Status == glpksolve.StatusFeasible {
			fillSolution(&sum, eng, vars, res.Values, inst)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func fillSolution(sum *summary, eng *restoration.Engine, vars *restoration.Variables, values []float64, inst *restoration.Instance) {
	sol := eng.NewSolution(vars, values)
	for _, res := range inst.Resources {
		if sol.Installed(res.ID) {
			sum.Installed = append(sum.Installed, res.ID)
		}
	}
	for _, line := range inst.Lines {
		if line.Kind.IsTask() && sol.Repaired(line.ID) {
			sum.Repaired = append(sum.Repaired, line.ID)
		}
	}
	sum.Tours = make(map[string][]string)
	for c, crew := range inst.Crews {
		if tour := sol.Tour(c); len(tour) > 0 {
			sum.Tours[crew.ID] = tour
		}
	}
}
