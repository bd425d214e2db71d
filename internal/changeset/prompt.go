package changeset

import (
	"fmt"
	"strings"

	"github.com/changesmith/internal/codecontext"
)

// systemPrompt mandates the tagged-marker format the tier-1 parser reads.
// This is the one textual contract between the generator and the parser.
const systemPrompt = `You are an expert software engineer AI assistant.
Your role is to generate high-quality, production-ready code based on task descriptions.

CRITICAL RULE: You MUST ALWAYS present every file you create, modify or delete in this EXACT format:

📄 File: path/to/file.ext [NEW/MODIFIED/DELETED]
` + "```" + `
<complete file content>
` + "```" + `

Rules:
- One marker line per file, followed by one fenced code block with the COMPLETE file content.
- Use [NEW] for files that do not exist yet, [MODIFIED] for changed files, [DELETED] for removals.
- A [DELETED] file needs no code block.
- Never use placeholder paths like path/to/file.ext in real output; use the actual repository path.
- When repository context is provided, match its structure, naming and conventions.`

// answerSystemPrompt is used for general questions that are not coding
// tasks; no file format is imposed.
const answerSystemPrompt = `You are a helpful coding assistant. Answer the user's question directly and concisely. Do not invent file changes.`

// maxPromptMessages bounds the conversation tail embedded in the prompt.
const maxPromptMessages = 10

// buildPrompt assembles the user prompt: task, grounding context, then the
// conversation tail so refinements see what was already proposed.
func buildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", req.Task)

	if req.Context != "" {
		b.WriteString("\nRepository context (existing files for grounding):\n")
		b.WriteString(req.Context)
		b.WriteString("\n")
	}

	messages := req.Messages
	if len(messages) > maxPromptMessages {
		messages = messages[len(messages)-maxPromptMessages:]
	}
	if len(messages) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
		b.WriteString("\nApply the latest request to the proposed changeset and output the full updated changeset.\n")
	}

	return b.String()
}

// FormatContext renders selected files into the prompt-embeddable grounding
// block that is memoized on the conversation.
func FormatContext(files []codecontext.SelectedFile) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", f.Path, f.Content)
	}
	return b.String()
}
