package sidekick

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sidekick/pkg/eventlog"
	"sidekick/pkg/llm"
	"sidekick/pkg/llm/llmerrors"
	"sidekick/pkg/logx"
	"sidekick/pkg/metrics"
	"sidekick/pkg/tools"
	"sidekick/pkg/utils"
)

// Options configures an Orchestrator.
type Options struct {
	// Worker is the model client used for the worker role.
	Worker llm.Client
	// Evaluator is the model client used for the evaluator role.
	Evaluator llm.Client
	// Tools is the registry of tools offered to the worker. May be empty.
	Tools *tools.Registry
	// Retry configures the invoker wrapped around every model call.
	Retry llm.RetryConfig
	// MaxCycles caps worker invocations per turn; 0 means unlimited.
	MaxCycles int
	// ToolTimeout bounds one tool dispatch batch; 0 means no deadline.
	ToolTimeout time.Duration
	// Events, when non-nil, receives turn lifecycle events.
	Events *eventlog.Log
}

// Orchestrator drives the worker/tools/evaluator loop over per-session
// conversation state.
type Orchestrator struct {
	worker      llm.Client
	evaluator   llm.Client
	tools       *tools.Registry
	dispatcher  *tools.Dispatcher
	invoker     *llm.Invoker
	sessions    *SessionRegistry
	events      *eventlog.Log
	logger      *logx.Logger
	maxCycles   int
	toolTimeout time.Duration
	tokens      *utils.TokenCounter

	// now is replaceable for tests.
	now func() time.Time
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	reg := opts.Tools
	if reg == nil {
		reg = tools.NewRegistry()
	}
	counter, err := utils.NewTokenCounter("gpt-4")
	if err != nil {
		counter = nil // estimation fallback inside CountTokens
	}
	return &Orchestrator{
		worker:      opts.Worker,
		evaluator:   opts.Evaluator,
		tools:       reg,
		dispatcher:  tools.NewDispatcher(reg),
		invoker:     llm.NewInvoker(opts.Retry),
		sessions:    NewSessionRegistry(),
		events:      opts.Events,
		logger:      logx.NewLogger("orchestrator"),
		maxCycles:   opts.MaxCycles,
		toolTimeout: opts.ToolTimeout,
		tokens:      counter,
		now:         time.Now,
	}
}

// Sessions returns the orchestrator's session registry.
func (o *Orchestrator) Sessions() *SessionRegistry {
	return o.sessions
}

// EvictSession removes a session's state.
func (o *Orchestrator) EvictSession(id string) {
	o.sessions.Evict(id)
}

// ToolErrors returns the dispatcher's error registry for inspection.
func (o *Orchestrator) ToolErrors() *tools.ErrorRegistry {
	return o.dispatcher.Errors()
}

// RunTurn processes one user message to completion. It validates input,
// appends the user message to the session (created if absent), runs the state
// machine until END, and returns the caller-visible history: the input
// history plus the user message and the final assistant reply.
//
// Input validation failures are the only errors returned; every model or
// tool failure inside the turn degrades into conversation content instead.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userMessage, successCriteria string, history []HistoryItem) ([]HistoryItem, error) {
	in, err := ValidateTurnInput(userMessage, successCriteria, history)
	if err != nil {
		return nil, err
	}

	sess := o.sessions.GetOrCreate(sessionID)
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	// A supplied history is authoritative: the caller owns the visible
	// conversation, so it reseeds the model context for this turn.
	if len(in.History) > 0 {
		sess.Messages = sess.Messages[:0]
		for _, item := range in.History {
			sess.Append(llm.Message{Role: llm.Role(item.Role), Content: item.Content})
		}
	}

	sess.SuccessCriteria = in.SuccessCriteria
	sess.FeedbackOnWork = ""
	sess.priorFeedback = ""
	sess.SuccessCriteriaMet = false
	sess.UserInputNeeded = false
	sess.Append(llm.Message{Role: llm.RoleUser, Content: in.Message})

	o.events.Record(sess.ID, eventlog.EventTurnStarted, in.Message)
	o.logger.Info("session %s: turn started (%d prior messages)", sess.ID, len(in.History))

	finalReply := o.runStateMachine(ctx, sess)

	outcome := "user_input_needed"
	if sess.SuccessCriteriaMet {
		outcome = "success"
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	o.events.Recordf(sess.ID, eventlog.EventTurnFinished, "outcome=%s", outcome)
	o.logger.Info("session %s: turn finished (%s)", sess.ID, outcome)

	updated := make([]HistoryItem, 0, len(in.History)+2)
	updated = append(updated, in.History...)
	updated = append(updated,
		HistoryItem{Role: "user", Content: in.Message},
		HistoryItem{Role: "assistant", Content: finalReply},
	)
	return updated, nil
}

// runStateMachine drives one turn from WORKER to END and returns the final
// worker-produced reply.
func (o *Orchestrator) runStateMachine(ctx context.Context, sess *SessionState) string {
	state := StateWorker
	workerCalls := 0
	finalReply := ""

	for state != StateEnd {
		switch state {
		case StateWorker:
			workerCalls++
			if o.maxCycles > 0 && workerCalls > o.maxCycles {
				sess.SuccessCriteriaMet = false
				sess.UserInputNeeded = true
				sess.FeedbackOnWork = fmt.Sprintf("Stopped after %d worker cycles without meeting the success criteria.", o.maxCycles)
				o.logger.Warn("session %s: cycle cap %d reached", sess.ID, o.maxCycles)
				state = StateEnd
				continue
			}
			finalReply = o.runWorker(ctx, sess, workerCalls)
		case StateTools:
			o.runTools(ctx, sess)
		case StateEvaluator:
			o.runEvaluator(ctx, sess)
		}
		state = Transition(state, sess)
	}

	metrics.TurnCycles.Observe(float64(workerCalls))
	return finalReply
}

// runWorker performs one worker model invocation and appends the resulting
// assistant message. Invocation failures never propagate: a synthetic
// assistant message describing the failure is appended instead, which routes
// the loop to the evaluator like any direct answer.
func (o *Orchestrator) runWorker(ctx context.Context, sess *SessionState, cycle int) string {
	feedback := sess.FeedbackOnWork
	sess.FeedbackOnWork = ""
	if feedback != "" {
		sess.priorFeedback = feedback
	}

	system := workerSystemPrompt(o.now(), sess.SuccessCriteria, o.tools.PromptDocumentation(), feedback)
	messages := withSystemMessage(sess.Messages, system)

	req := llm.CompletionRequest{
		Messages: messages,
		Tools:    o.tools.Definitions(),
	}

	resp, err := llm.Invoke(ctx, o.invoker, "worker", func(ctx context.Context) (llm.CompletionResponse, error) {
		return o.worker.Complete(ctx, req)
	})
	if err != nil {
		o.logger.Error("session %s: worker invocation failed: %v", sess.ID, err)
		o.events.Recordf(sess.ID, eventlog.EventTurnFailed, "worker cycle=%d error=%v", cycle, err)
		degraded := fmt.Sprintf(
			"I encountered an error while processing your request: %s. "+
				"Please try again or rephrase your request. Details: %v",
			describeInvocationError(err), underlyingError(err))
		sess.Append(llm.Message{Role: llm.RoleAssistant, Content: degraded})
		return degraded
	}

	sess.Append(resp.Message)

	inputTokens := resp.Usage.InputTokens
	if inputTokens == 0 {
		// Provider reported no usage; estimate from the prompt text.
		total := 0
		for _, m := range messages {
			total += o.tokens.CountTokens(m.Content)
		}
		inputTokens = total
	}
	o.events.Recordf(sess.ID, eventlog.EventWorkerCalled, "cycle=%d tool_calls=%d input_tokens=%d",
		cycle, len(resp.Message.ToolCalls), inputTokens)
	o.logger.Debug("session %s: worker cycle %d produced %d tool calls (~%d input tokens)",
		sess.ID, cycle, len(resp.Message.ToolCalls), inputTokens)
	return resp.Message.Content
}

// runTools dispatches the tool calls from the last assistant message and
// appends one tool-role message per call, in call order.
func (o *Orchestrator) runTools(ctx context.Context, sess *SessionState) {
	last, ok := sess.LastMessage()
	if !ok || !last.HasToolCalls() {
		return
	}

	dispatchCtx := ctx
	if o.toolTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, o.toolTimeout)
		defer cancel()
	}

	results := o.dispatcher.Dispatch(dispatchCtx, last.ToolCalls)
	for _, result := range results {
		sess.Append(llm.Message{
			Role:       llm.RoleTool,
			Content:    result.MessageContent(),
			ToolCallID: result.ToolCallID,
			ToolName:   result.ToolName,
		})
	}
	o.events.Recordf(sess.ID, eventlog.EventToolsExecuted, "calls=%d", len(results))
}

// runEvaluator judges the last assistant answer. A failed or undecodable
// evaluation applies the fail-safe verdict: not met, user input needed.
func (o *Orchestrator) runEvaluator(ctx context.Context, sess *SessionState) {
	lastResponse := sess.LastAssistantContent()

	req := llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: evaluatorSystemPrompt},
			{Role: llm.RoleUser, Content: evaluatorUserPrompt(sess.Messages, sess.SuccessCriteria, lastResponse, sess.priorFeedback)},
		},
	}

	decision, err := llm.Invoke(ctx, o.invoker, "evaluator", func(ctx context.Context) (llm.EvaluatorDecision, error) {
		return o.evaluator.CompleteStructured(ctx, req)
	})
	if err != nil {
		o.logger.Error("session %s: evaluator invocation failed, applying fail-safe: %v", sess.ID, err)
		o.events.Recordf(sess.ID, eventlog.EventTurnFailed, "evaluator error=%v", err)
		kind := describeInvocationError(err)
		sess.Append(llm.Message{
			Role:    llm.RoleAssistant,
			Content: fmt.Sprintf("Evaluator encountered an error: %s. Requesting user input to proceed.", kind),
		})
		sess.FeedbackOnWork = fmt.Sprintf("Evaluation failed: %s. Please try again.", kind)
		sess.SuccessCriteriaMet = false
		sess.UserInputNeeded = true
		return
	}

	sess.Append(llm.Message{
		Role:    llm.RoleAssistant,
		Content: fmt.Sprintf("Evaluator Feedback on this answer: %s", decision.Feedback),
	})
	sess.FeedbackOnWork = decision.Feedback
	sess.SuccessCriteriaMet = decision.SuccessCriteriaMet
	sess.UserInputNeeded = decision.UserInputNeeded
	o.events.Recordf(sess.ID, eventlog.EventEvaluatorRuled, "met=%t input_needed=%t",
		decision.SuccessCriteriaMet, decision.UserInputNeeded)
	o.logger.Debug("session %s: evaluator ruled met=%t input_needed=%t",
		sess.ID, decision.SuccessCriteriaMet, decision.UserInputNeeded)
}

// withSystemMessage returns the conversation with its system message set to
// system: the first existing system entry is replaced in place, otherwise one
// is prepended. The session's own messages are not mutated.
func withSystemMessage(messages []llm.Message, system string) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	replaced := false
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem && !replaced {
			msg.Content = system
			replaced = true
		}
		out = append(out, msg)
	}
	if !replaced {
		out = append([]llm.Message{{Role: llm.RoleSystem, Content: system}}, out...)
	}
	return out
}

// describeInvocationError names an invocation failure for user-facing
// degradation messages.
func describeInvocationError(err error) string {
	var invErr *llm.InvocationError
	if errors.As(err, &invErr) {
		if invErr.Fatal {
			return llmerrors.TypeOf(invErr.Err).String()
		}
		return fmt.Sprintf("retries exhausted after %d attempts", invErr.Attempts)
	}
	return "invocation error"
}

// underlyingError unwraps an invocation error to its final cause.
func underlyingError(err error) error {
	var invErr *llm.InvocationError
	if errors.As(err, &invErr) && invErr.Err != nil {
		return invErr.Err
	}
	return err
}
