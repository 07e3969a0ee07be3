package workflow

import (
	"fmt"
	"strings"
)

const reasoningPromptTmpl = `You are a strategic thinking partner inside a personal knowledge system. The user captured a thought that was classified as %s.

Instruction: %s

Original thought:
%s

Respond with your analysis as plain text, no preamble.`

func reasoningPrompt(entityType, instruction, content string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = "Analyze this thought and suggest the most useful next step."
	}
	return fmt.Sprintf(reasoningPromptTmpl, entityType, instruction, strings.TrimSpace(content))
}

// DefaultNudgeInstruction is used when an ai_nudge action carries no
// template of its own.
const DefaultNudgeInstruction = "Generate a 1-sentence strategic nudge that helps the user make progress. Keep it under 25 words."

const nudgePromptTmpl = `You are a proactive coach inside a personal knowledge system. A workflow fired for a thought classified as %s.

Instruction: %s

%sOriginal thought:
%s

Respond with the nudge text only.`

func nudgePrompt(entityType, insights, instruction, content string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultNudgeInstruction
	}
	insightBlock := ""
	if strings.TrimSpace(insights) != "" {
		insightBlock = "Earlier analysis of this thought:\n" + strings.TrimSpace(insights) + "\n\n"
	}
	return fmt.Sprintf(nudgePromptTmpl, entityType, instruction, insightBlock, strings.TrimSpace(content))
}
