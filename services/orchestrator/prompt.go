package orchestrator

import (
	"fmt"
	"strings"
)

// instructions are the per-agent system prompts. Each asks for fenced code
// blocks and bullet suggestions so ParseAgentResponse has something to
// extract.
var instructions = map[AgentType]string{
	AgentAnalyzer: "You are a code analysis agent. Examine the input and report " +
		"structural issues, risky patterns and dead code. List concrete findings as bullet points.",
	AgentSecurity: "You are a security review agent. Identify vulnerabilities, unsafe " +
		"input handling and secret leakage. List each finding as a bullet point with severity.",
	AgentPerformance: "You are a performance analysis agent. Identify hot paths, " +
		"unnecessary allocations and blocking calls. Suggest measurable improvements as bullet points.",
	AgentRefactor: "You are a refactoring agent. Propose cleaner structure for the input. " +
		"Return rewritten code in fenced code blocks and the rationale as bullet points.",
	AgentTestWriter: "You are a test-writing agent. Produce test cases for the input in " +
		"fenced code blocks, covering edge cases, and list untestable areas as bullet points.",
	AgentDocumentation: "You are a documentation agent. Write concise reference " +
		"documentation for the input. Use bullet points for usage notes.",
	AgentResearch: "You are a research agent. Gather current, sourced information on the " +
		"topic and summarize it. List key sources as bullet points.",
}

const genericInstruction = "You are an analysis agent. Examine the input and " +
	"report your findings as bullet points."

// agentInstruction returns the system prompt for an agent type
func agentInstruction(t AgentType) string {
	if instr, ok := instructions[t]; ok {
		return instr
	}
	return genericInstruction
}

// buildTaskPrompt assembles the user prompt from the task input, the
// optional file-path hint and the optional prior-results context
func buildTaskPrompt(task Task, priorContext string) string {
	var b strings.Builder

	b.WriteString(task.Input)

	if task.FilePath != "" {
		b.WriteString("\n\nRelevant file: ")
		b.WriteString(task.FilePath)
	}

	if priorContext != "" {
		b.WriteString("\n\nResults from earlier analysis steps:\n")
		b.WriteString(priorContext)
	}

	return b.String()
}

// priorResultsContext renders the accumulated results (agent type + output
// of every task so far) for threading into the next task's prompt
func priorResultsContext(results []Result) string {
	var b strings.Builder
	for _, res := range results {
		if res.Status != StatusCompleted {
			continue
		}
		b.WriteString(fmt.Sprintf("[%s]\n%s\n\n", res.AgentType, res.Output))
	}
	return strings.TrimRight(b.String(), "\n")
}
