package sidekick

import (
	"fmt"
	"strings"
	"time"

	"sidekick/pkg/llm"
)

// workerSystemPrompt builds the worker's system instructions for one
// invocation, including the current time, the success criteria, any available
// tool documentation, and pending evaluator feedback.
func workerSystemPrompt(now time.Time, criteria, toolDocs, feedback string) string {
	var sb strings.Builder

	sb.WriteString(`You are a helpful assistant that can use tools to complete tasks.
You keep working on a task until either you have a question or clarification for the user, or the success criteria is met.
`)
	fmt.Fprintf(&sb, "The current date and time is %s\n", now.Format("2006-01-02 15:04:05"))

	if toolDocs != "" {
		sb.WriteString("\n")
		sb.WriteString(toolDocs)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, `
This is the success criteria:
%s
You should reply either with a question for the user about this assignment, or with your final response.
If you have a question for the user, you need to reply by clearly stating your question. An example might be:

Question: please clarify whether you want a summary or a detailed answer

If you've finished, reply with the final answer, and don't ask a question; simply reply with the answer.
`, criteria)

	if feedback != "" {
		fmt.Fprintf(&sb, `
Previously you thought you completed the assignment, but your reply was rejected because the success criteria was not met.
Here is the feedback on why this was rejected:
%s
With this feedback, please continue the assignment, ensuring that you meet the success criteria or have a question for the user.`, feedback)
	}

	return sb.String()
}

const evaluatorSystemPrompt = `You are an evaluator that determines if a task has been completed successfully by an Assistant.
Assess the Assistant's last response based on the given criteria. Respond with your feedback, and with your decision on whether the success criteria has been met,
and whether more input is needed from the user.`

// evaluatorUserPrompt builds the evaluator's user message from the full
// conversation, the criteria, and the response under judgment.
func evaluatorUserPrompt(messages []llm.Message, criteria, lastResponse, priorFeedback string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are evaluating a conversation between the User and Assistant. You decide what action to take based on the last response from the Assistant.

The entire conversation with the assistant, with the user's original request and all replies, is:
Conversation history:

%s

The success criteria for this assignment is:
%s

And the final response from the Assistant that you are evaluating is:
%s

Respond with your feedback, and decide if the success criteria is met by this response.
Also, decide if more user input is required, either because the assistant has a question, needs clarification, or seems to be stuck and unable to answer without help.

The Assistant has access to a tool to write files. If the Assistant says they have written a file, then you can assume they have done so.
Overall you should give the Assistant the benefit of the doubt if they say they've done something. But you should reject if you feel that more work should go into this.
`, llm.FormatConversation(messages), criteria, lastResponse)

	if priorFeedback != "" {
		fmt.Fprintf(&sb, "\nAlso, note that in a prior attempt from the Assistant, you provided this feedback: %s\n", priorFeedback)
		sb.WriteString("If you're seeing the Assistant repeating the same mistakes, then consider responding that user input is required.")
	}

	return sb.String()
}
