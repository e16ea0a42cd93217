package sidekick

import (
	"sync"

	"github.com/google/uuid"

	"sidekick/pkg/llm"
	"sidekick/pkg/metrics"
)

// SessionState is the mutable conversation state of one session. It is
// mutated only by the orchestrator's state machine, and only under the
// session's turn lock.
type SessionState struct {
	// ID identifies the session.
	ID string

	// Messages is the append-only conversation, in model-context order.
	Messages []llm.Message

	// SuccessCriteria is the goal for the current turn.
	SuccessCriteria string

	// FeedbackOnWork is set by the evaluator on rejection and consumed
	// (cleared) by the next worker invocation.
	FeedbackOnWork string

	// priorFeedback retains the feedback the worker last acted on, so a
	// re-evaluation can flag repeated mistakes.
	priorFeedback string

	// SuccessCriteriaMet and UserInputNeeded are the evaluator's verdict.
	SuccessCriteriaMet bool
	UserInputNeeded    bool

	// turnMu serializes turns: a session's state is not safe for two
	// overlapping RunTurn calls.
	turnMu sync.Mutex
}

// LastMessage returns the most recent message, if any.
func (s *SessionState) LastMessage() (llm.Message, bool) {
	if len(s.Messages) == 0 {
		return llm.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAssistantContent returns the content of the most recent assistant
// message, or empty when there is none.
func (s *SessionState) LastAssistantContent() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Append adds messages to the conversation.
func (s *SessionState) Append(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// SessionRegistry tracks live sessions by id with an explicit create/evict
// lifecycle. Lookups of different sessions never contend with a running turn.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*SessionState),
	}
}

// GetOrCreate returns the session with the given id, creating it if absent.
// An empty id creates a fresh session with a generated id.
func (r *SessionRegistry) GetOrCreate(id string) *SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if sess, ok := r.sessions[id]; ok {
		return sess
	}
	sess := &SessionState{ID: id}
	r.sessions[id] = sess
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return sess
}

// Get returns the session with the given id, if it exists.
func (r *SessionRegistry) Get(id string) (*SessionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Evict removes a session from the registry. A turn already running on the
// evicted session completes against its own state; the id simply maps to a
// fresh session afterwards.
func (r *SessionRegistry) Evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
