package dubbing

import "github.com/therealutkarshpriyadarshi/coursedub/pkg/models"

// Source tags which transport drove a state change
type Source string

// Transition sources
const (
	SourceSubmit   Source = "submit"
	SourceCallback Source = "callback"
	SourcePoll     Source = "poll"
	SourceTimeout  Source = "timeout"
)

// Transition is a single allowed edge in the dub job state machine.
type Transition struct {
	From models.DubJobState
	To   models.DubJobState
}

var transitionsTable = []Transition{
	// Remote accept or refusal
	{From: models.DubJobQueued, To: models.DubJobSubmitted},
	{From: models.DubJobQueued, To: models.DubJobFailed},

	// Progress
	{From: models.DubJobSubmitted, To: models.DubJobProcessing},

	// Completion, with or without an observed processing phase
	{From: models.DubJobSubmitted, To: models.DubJobReady},
	{From: models.DubJobSubmitted, To: models.DubJobFailed},
	{From: models.DubJobProcessing, To: models.DubJobReady},
	{From: models.DubJobProcessing, To: models.DubJobFailed},
}

type decision int

const (
	decisionApply decision = iota
	decisionNoop
)

// decide classifies a requested move. Re-applying the current state is a
// no-op; leaving a terminal state or moving backwards is an error.
func decide(from, to models.DubJobState) (decision, error) {
	if from == to {
		return decisionNoop, nil
	}
	if from.IsTerminal() {
		return decisionNoop, ErrTerminalState
	}
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to {
			return decisionApply, nil
		}
	}
	return decisionNoop, ErrInvalidTransition
}

// Allowed reports whether from -> to is an edge of the state machine.
func Allowed(from, to models.DubJobState) bool {
	d, err := decide(from, to)
	return err == nil && d == decisionApply
}
