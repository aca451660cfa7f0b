// Package prompt builds the chat messages sent to the model for commit
// message generation.
package prompt

import (
	"fmt"
	"strings"

	"cmsg_cli/pkg/gitdiff"
	"cmsg_cli/pkg/llm"
)

const systemPrompt = `You are an expert software engineer writing a git commit message for the staged changes below.

Rules:
- Write a concise subject line under 72 characters in the imperative mood.
- If the change warrants it, add a blank line and a short body explaining what changed and why.
- Describe the change itself, not the process of making it.
- Output only the commit message. No markdown fences, no commentary.`

const conventionalRules = `- Use the Conventional Commits format: type(scope): subject. Valid types: feat, fix, docs, style, refactor, perf, test, build, ci, chore.`

// Options adjust how the prompt is built.
type Options struct {
	Conventional bool   // require Conventional Commits format
	Hint         string // extra user instruction, verbatim
	Branch       string // current branch name, if known
}

// Build renders the system and user messages for a staged changeset.
func Build(changes gitdiff.Changes, opts Options) []llm.Message {
	system := systemPrompt
	if opts.Conventional {
		system += "\n" + conventionalRules
	}

	var b strings.Builder
	stats := changes.Stats()
	fmt.Fprintf(&b, "Staged changes: %d file(s), +%d -%d", stats.Files, stats.Insertions, stats.Deletions)
	if opts.Branch != "" {
		fmt.Fprintf(&b, " on branch %s", opts.Branch)
	}
	b.WriteString("\n")

	for _, f := range changes.Files {
		fmt.Fprintf(&b, "\n%s: %s\n", f.Status, f.Path)
		if f.Binary {
			b.WriteString("(binary file)\n")
			continue
		}
		if f.Diff != "" {
			b.WriteString(f.Diff)
		}
	}
	if changes.Truncated {
		b.WriteString("\n(diff truncated)\n")
	}
	if hint := strings.TrimSpace(opts.Hint); hint != "" {
		fmt.Fprintf(&b, "\nAdditional instruction: %s\n", hint)
	}

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}
