package rag

import (
	"fmt"
	"strings"

	"github.com/koopa0/gitquery/internal/store"
)

const noContextPlaceholder = "No specific context was found for this query."

const promptTemplate = `You are an expert software developer AI assistant named Git-Query. Your task is to be a helpful, in-depth conversational partner.

Follow this logic:
1.  **Analyze the User's Question:** First, understand if the user is asking a question directly about the code in the provided "CONTEXT FROM REPOSITORY" or if they are asking a more general, conceptual question (e.g., "teach me about redis").

2.  **Prioritize Repository Context:** If the question can be answered using the provided context, you MUST base your answer on it. When you do this, begin your response with "Based on the repository files...". Provide detailed explanations and elaborate on the code's purpose and functionality.

3.  **Use General Knowledge as a Fallback:** If the context is insufficient OR the user asks a general knowledge question, you are then permitted to use your own internal knowledge to provide a comprehensive answer. When you do this, you MUST begin your response with "From my general knowledge base...".

4.  **Be Conversational:** Do not simply state "I could not find the answer." Instead, use the logic above to provide the most helpful response possible.

---
CONTEXT FROM REPOSITORY:
%s
---

User's Question: %s

ANSWER:`

// FormatContext renders retrieved chunks as the context block fed to the
// model, one block per chunk separated by horizontal rules.
func FormatContext(chunks []store.ScoredChunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("File Path: %s\n\nContent:\n%s", c.FilePath, c.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// ComposePrompt embeds the context block and question into the
// assistant instructions. An empty context block is replaced with an
// explicit placeholder so the model knows to fall back to general
// knowledge.
func ComposePrompt(contextBlock, question string) string {
	if contextBlock == "" {
		contextBlock = noContextPlaceholder
	}
	return fmt.Sprintf(promptTemplate, contextBlock, question)
}
