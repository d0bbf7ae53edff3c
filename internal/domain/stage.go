package domain

import "fmt"

// Stage is a step of the post-hire lifecycle. Stages are ordered.
type Stage string

const (
	StageHired      Stage = "hired"
	StageStarted    Stage = "started"
	StageInProgress Stage = "in_progress"
	StageReview     Stage = "review"
	StageCompleted  Stage = "completed"
)

var stageOrder = []Stage{StageHired, StageStarted, StageInProgress, StageReview, StageCompleted}

var stageFloors = map[Stage]int{
	StageHired:      0,
	StageStarted:    10,
	StageInProgress: 50,
	StageReview:     85,
	StageCompleted:  100,
}

// stageTransitions lists the stages reachable from each stage.
// completed -> in_progress is the rework path and is only legal before
// the client confirms; the engine checks that part.
var stageTransitions = map[Stage][]Stage{
	StageHired:      {StageStarted, StageInProgress},
	StageStarted:    {StageInProgress},
	StageInProgress: {StageReview, StageCompleted},
	StageReview:     {StageInProgress, StageCompleted},
	StageCompleted:  {StageInProgress},
}

func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if _, ok := stageFloors[st]; !ok {
		return "", fmt.Errorf("invalid stage %q", s)
	}
	return st, nil
}

func (s Stage) Valid() bool {
	_, ok := stageFloors[s]
	return ok
}

// Floor is the minimum progress percentage for the stage.
func (s Stage) Floor() int {
	return stageFloors[s]
}

// CanTransition reports whether next is reachable from s.
func (s Stage) CanTransition(next Stage) bool {
	for _, st := range stageTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Stages returns the lifecycle in order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Label is the human readable stage name used in notifications.
func (s Stage) Label() string {
	switch s {
	case StageHired:
		return "Hired"
	case StageStarted:
		return "Started"
	case StageInProgress:
		return "In progress"
	case StageReview:
		return "In review"
	case StageCompleted:
		return "Completed"
	default:
		return string(s)
	}
}
