package classify

import (
	"fmt"
	"strings"
)

const classificationPrompt = `You are the classification engine of a personal knowledge system. The user captured a raw thought. Classify it into exactly one of: PROJECT (ongoing work with a goal), PERSON (a relationship or interaction), IDEA (a concept to develop later), ADMIN (a simple actionable task), or CLARIFY (too ambiguous to classify).

Respond with a single JSON object and nothing else. Fields:
- "type": one of PROJECT, PERSON, IDEA, ADMIN, CLARIFY
- "title": a short title for the record
- "summary": one-sentence summary
- "intent": the user's underlying intent, a few words
- "confidence": 0.0-1.0, how certain you are of the type
- "status": suggested record status (usually "active")
- "reasoning": a short narrative explaining the classification
- "routingStrategy": a short narrative explaining where this lands and why
- exactly one metadata block matching the type:
  "projectData": {"goal", "deadline", "priority", "nextAction"}
  "personData": {"role", "company", "relation", "lastTouch"}
  "ideaData": {"category", "maturity", "sparks"}
  "adminData": {"dueDate", "urgency", "recurring"}
- for CLARIFY instead provide "clarificationQuestion" and no metadata block.

Thought:
%s`

// BuildPrompt renders the classification prompt for one captured thought.
func BuildPrompt(content string) string {
	return fmt.Sprintf(classificationPrompt, strings.TrimSpace(content))
}
