package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// Mock is a deterministic offline provider. Classification prompts get
// a canned structured response derived from simple keyword heuristics;
// every other prompt gets a fixed sentence. Nothing leaves the process.
type Mock struct{}

// NewMock creates the offline provider.
func NewMock() *Mock {
	return &Mock{}
}

// Generate returns canned output keyed on the prompt shape.
func (m *Mock) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Respond with a single JSON object") {
		return m.cannedClassification(prompt), nil
	}
	if strings.Contains(prompt, "NO_NUDGE") {
		return "NO_NUDGE", nil
	}
	return "Mock reasoning: focus on the single next concrete step.", nil
}

// cannedClassification inspects the captured thought (the text after the
// final "Thought:" marker) and fabricates a plausible structured result.
func (m *Mock) cannedClassification(prompt string) string {
	thought := prompt
	if idx := strings.LastIndex(prompt, "Thought:\n"); idx >= 0 {
		thought = prompt[idx+len("Thought:\n"):]
	}
	thought = strings.TrimSpace(thought)
	lower := strings.ToLower(thought)

	title := thought
	if len(title) > 60 {
		title = title[:60]
	}

	switch {
	case strings.Count(lower, "?") > 0 && len(lower) < 20:
		return `{"type": "CLARIFY", "confidence": 0.3, "reasoning": "The input is too short to classify.", "clarificationQuestion": "Can you elaborate on what you meant?"}`
	case strings.Contains(lower, "idea"):
		return fmt.Sprintf(`{"type": "IDEA", "title": %q, "summary": %q, "intent": "capture", "confidence": 0.9, "status": "active", "reasoning": "The thought describes a new idea.", "routingStrategy": "Stored as an idea for later maturation.", "ideaData": {"category": "general", "maturity": "spark"}}`, title, thought)
	case strings.Contains(lower, "met ") || strings.Contains(lower, "meeting with") || strings.Contains(lower, "call with"):
		return fmt.Sprintf(`{"type": "PERSON", "title": %q, "summary": %q, "intent": "relationship", "confidence": 0.85, "status": "active", "reasoning": "The thought is about a person.", "routingStrategy": "Stored as a contact record.", "personData": {"role": "", "company": ""}}`, title, thought)
	case strings.Contains(lower, "project") || strings.Contains(lower, "build") || strings.Contains(lower, "launch"):
		return fmt.Sprintf(`{"type": "PROJECT", "title": %q, "summary": %q, "intent": "execute", "confidence": 0.92, "status": "active", "reasoning": "The thought describes ongoing work.", "routingStrategy": "Tracked as a project with a next action.", "projectData": {"goal": %q, "priority": "medium"}}`, title, thought, thought)
	default:
		return fmt.Sprintf(`{"type": "ADMIN", "title": %q, "summary": %q, "intent": "task", "confidence": 0.95, "status": "active", "reasoning": "The thought is a simple actionable task.", "routingStrategy": "Filed as an admin task.", "adminData": {"urgency": "normal"}}`, title, thought)
	}
}

const mockEmbedDims = 16

// Embed returns a deterministic pseudo-vector derived from word hashes,
// good enough for exercising similarity search offline.
func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, mockEmbedDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		sum := h.Sum32()
		vec[sum%mockEmbedDims] += 1
		vec[(sum>>8)%mockEmbedDims] += 0.5
	}
	return vec, nil
}
