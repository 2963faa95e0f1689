package restoration

import (
	"errors"
	"fmt"
)

var (
	ErrBadHorizon   = errors.New("horizon must have at least one build step of positive width")
	ErrBadLoadShape = errors.New("load shape length must equal the number of build steps")
)

// Horizon is the ordered time-step sequence: build steps 1..H carry full
// electrical state, run steps H+1..2H carry active power only and replay
// the build-phase hourly pattern. ExtraDays weighs run-phase contributions
// to approximate that many repeated days.
type Horizon struct {
	BuildSteps int
	StepHours  float64
	ExtraDays  int
}

// NewHorizon validates the horizon parameters.
func NewHorizon(buildSteps int, stepHours float64, extraDays int) (*Horizon, error) {
	if buildSteps < 1 || stepHours <= 0 {
		return nil, fmt.Errorf("steps=%d width=%v: %w", buildSteps, stepHours, ErrBadHorizon)
	}
	if extraDays < 0 {
		extraDays = 0
	}
	return &Horizon{BuildSteps: buildSteps, StepHours: stepHours, ExtraDays: extraDays}, nil
}

// TotalSteps returns 2H, the number of modeled steps.
func (h *Horizon) TotalSteps() int { return 2 * h.BuildSteps }

// IsBuild reports whether the 1-based step t is a build-phase step.
func (h *Horizon) IsBuild(t int) bool { return t >= 1 && t <= h.BuildSteps }

// RunStart returns the first run-phase step, H+1.
func (h *Horizon) RunStart() int { return h.BuildSteps + 1 }

// Hour returns the wall-clock hour at the end of build step t. Task
// availability at step t requires crew completion by this hour.
func (h *Horizon) Hour(t int) float64 { return float64(t) * h.StepHours }

// ShapeIndex maps step t onto the 0-based index of the hourly load shape;
// run steps replay the build-phase pattern.
func (h *Horizon) ShapeIndex(t int) int {
	if h.IsBuild(t) {
		return t - 1
	}
	return t - h.BuildSteps - 1
}

// DayWeight returns the objective weight of step t: 1 for build steps,
// ExtraDays for run steps.
func (h *Horizon) DayWeight(t int) float64 {
	if h.IsBuild(t) {
		return 1
	}
	return float64(h.ExtraDays)
}
