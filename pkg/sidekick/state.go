// Package sidekick implements the worker/tools/evaluator orchestration loop.
//
// A turn starts in WORKER. Assistant responses that request tools route to
// TOOLS and back; direct answers route to EVALUATOR, which either accepts the
// answer (or demands user input) and ends the turn, or rejects it with
// feedback and sends the loop back to WORKER.
package sidekick

// State is one node of the orchestration state machine.
type State int

const (
	// StateWorker invokes the worker model over the conversation.
	StateWorker State = iota
	// StateTools executes the tool calls requested by the last assistant message.
	StateTools
	// StateEvaluator judges the last assistant answer against the success criteria.
	StateEvaluator
	// StateEnd terminates the turn and returns control to the caller.
	StateEnd
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWorker:
		return "WORKER"
	case StateTools:
		return "TOOLS"
	case StateEvaluator:
		return "EVALUATOR"
	case StateEnd:
		return "END"
	default:
		return "INVALID"
	}
}

// Transition is the pure routing function of the state machine. It inspects
// only the session snapshot and never mutates it.
func Transition(current State, sess *SessionState) State {
	switch current {
	case StateWorker:
		if last, ok := sess.LastMessage(); ok && last.HasToolCalls() {
			return StateTools
		}
		return StateEvaluator
	case StateTools:
		return StateWorker
	case StateEvaluator:
		if sess.SuccessCriteriaMet || sess.UserInputNeeded {
			return StateEnd
		}
		return StateWorker
	default:
		return StateEnd
	}
}
