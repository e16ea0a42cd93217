package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sidekick/pkg/logx"
	"sidekick/pkg/metrics"
)

// ToolErrorMarker is the fixed prefix that distinguishes a failure message
// from ordinary tool output. The worker model keys off this string.
const ToolErrorMarker = "[TOOL ERROR]"

const maxErrorMessageLen = 500

// ToolCallResult is the uniform record produced for one tool invocation.
// Exactly one result is produced per requested call, success or failure.
type ToolCallResult struct {
	ToolCallID string
	ToolName   string
	Content    string
	ErrorKind  string
	IsError    bool
}

// MessageContent renders the result as conversation text: raw output on
// success, the marked failure description on failure. Formatting is pure, so
// rendering the same result twice yields identical text.
func (r *ToolCallResult) MessageContent() string {
	if !r.IsError {
		return r.Content
	}
	return FormatFailure(r.ToolName, r.ErrorKind, r.Content)
}

// FormatFailure renders a tool failure for LLM consumption. The model needs
// to understand that a tool failed and why, so it can retry with different
// inputs, use an alternative tool, or ask the user for clarification.
func FormatFailure(toolName, errorKind, errorMessage string) string {
	return fmt.Sprintf(
		"%s Tool Execution Failed\nTool: %s\nError Type: %s\nMessage: %s\n\nThe tool failed and cannot be used for this request.",
		ToolErrorMarker, toolName, errorKind, errorMessage,
	)
}

// errorRecord is one recorded failure for a tool:kind key.
type errorRecord struct {
	Timestamp    time.Time
	ErrorMessage string
}

// ErrorRegistry tracks tool failures for observability. Keys are
// "tool:error_kind"; the registry keeps counts plus recent truncated
// messages. It is per-dispatcher and append-only.
type ErrorRegistry struct {
	mu      sync.Mutex
	records map[string][]errorRecord
	counts  map[string]int
}

// NewErrorRegistry creates an empty error registry.
func NewErrorRegistry() *ErrorRegistry {
	return &ErrorRegistry{
		records: make(map[string][]errorRecord),
		counts:  make(map[string]int),
	}
}

const maxRecordsPerKey = 50

// Record notes a tool failure under its tool:kind key.
func (er *ErrorRegistry) Record(toolName, errorKind, errorMessage string) {
	er.mu.Lock()
	defer er.mu.Unlock()

	key := toolName + ":" + errorKind
	if len(errorMessage) > 200 {
		errorMessage = errorMessage[:200]
	}
	records := append(er.records[key], errorRecord{
		Timestamp:    time.Now().UTC(),
		ErrorMessage: errorMessage,
	})
	if len(records) > maxRecordsPerKey {
		records = records[len(records)-maxRecordsPerKey:]
	}
	er.records[key] = records
	er.counts[key]++
}

// Summary returns failure counts keyed by "tool:error_kind".
func (er *ErrorRegistry) Summary() map[string]int {
	er.mu.Lock()
	defer er.mu.Unlock()

	summary := make(map[string]int, len(er.counts))
	for key, count := range er.counts {
		summary[key] = count
	}
	return summary
}

// RecentMessages returns the retained messages for one tool:error_kind pair,
// oldest first.
func (er *ErrorRegistry) RecentMessages(toolName, errorKind string) []string {
	er.mu.Lock()
	defer er.mu.Unlock()

	records := er.records[toolName+":"+errorKind]
	messages := make([]string, 0, len(records))
	for _, rec := range records {
		messages = append(messages, rec.ErrorMessage)
	}
	return messages
}

// CountFor returns the total recorded failures for one tool across all kinds.
func (er *ErrorRegistry) CountFor(toolName string) int {
	er.mu.Lock()
	defer er.mu.Unlock()

	total := 0
	for key, count := range er.counts {
		if len(key) > len(toolName) && key[:len(toolName)+1] == toolName+":" {
			total += count
		}
	}
	return total
}

// Dispatcher executes batches of tool calls with per-call error isolation.
// One call's failure never prevents execution of subsequent calls, and no
// error from a tool implementation escapes to the caller.
type Dispatcher struct {
	registry *Registry
	errors   *ErrorRegistry
	logger   *logx.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		errors:   NewErrorRegistry(),
		logger:   logx.NewLogger("tool-dispatch"),
	}
}

// Errors exposes the dispatcher's error registry for inspection.
func (d *Dispatcher) Errors() *ErrorRegistry {
	return d.errors
}

// Dispatch executes each requested call independently and returns exactly one
// result per call, in input order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []ToolCall) []ToolCallResult {
	results := make([]ToolCallResult, len(calls))
	for i := range calls {
		results[i] = d.dispatchOne(ctx, &calls[i])
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call *ToolCall) ToolCallResult {
	tool, err := d.registry.Get(call.Name)
	if err != nil {
		d.logger.Warn("Tool %s not found (call %s)", call.Name, call.ID)
		d.errors.Record(call.Name, ErrorKindNotFound, err.Error())
		metrics.ToolExecutions.WithLabelValues(call.Name, metrics.StatusError, ErrorKindNotFound).Inc()
		return ToolCallResult{
			ToolCallID: call.ToolCallIDOrName(),
			ToolName:   call.Name,
			Content:    fmt.Sprintf("tool %q is not registered", call.Name),
			ErrorKind:  ErrorKindNotFound,
			IsError:    true,
		}
	}

	start := time.Now()
	output, execErr := d.execIsolated(ctx, tool, call.Arguments)
	duration := time.Since(start)
	metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(duration.Seconds())

	if execErr != nil {
		kind := ErrorKind(execErr)
		message := truncate(execErr.Error(), maxErrorMessageLen)
		d.logger.Error("Tool %s failed after %.3fs: %s: %s", call.Name, duration.Seconds(), kind, message)
		d.errors.Record(call.Name, kind, message)
		metrics.ToolExecutions.WithLabelValues(call.Name, metrics.StatusError, kind).Inc()
		return ToolCallResult{
			ToolCallID: call.ToolCallIDOrName(),
			ToolName:   call.Name,
			Content:    message,
			ErrorKind:  kind,
			IsError:    true,
		}
	}

	d.logger.Info("Tool %s completed in %.3fs", call.Name, duration.Seconds())
	metrics.ToolExecutions.WithLabelValues(call.Name, metrics.StatusSuccess, "").Inc()
	return ToolCallResult{
		ToolCallID: call.ToolCallIDOrName(),
		ToolName:   call.Name,
		Content:    output,
	}
}

// execIsolated invokes the tool and converts panics into errors so a broken
// tool implementation cannot take down the loop.
func (d *Dispatcher) execIsolated(ctx context.Context, tool Tool, args map[string]any) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewToolError(ErrorKindPanic, "tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Exec(ctx, args)
}

// ToolCallIDOrName returns the call's ID, falling back to its name when the
// model supplied no ID.
func (c *ToolCall) ToolCallIDOrName() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
