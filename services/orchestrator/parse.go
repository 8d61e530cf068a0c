package orchestrator

import (
	"regexp"
	"strings"
)

// ParsedResponse holds the structured pieces extracted from a raw agent
// response
type ParsedResponse struct {
	// Code is every fenced code block, concatenated in order of appearance
	Code string

	// Suggestions are the bullet and numbered list items, in order
	Suggestions []string
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9_+.#-]*\\r?\\n?(.*?)```")
	suggestionRe = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// ParseAgentResponse extracts fenced code blocks and list-item suggestions
// from a raw text response. It is a pure function: no match means empty
// fields, never an error.
func ParseAgentResponse(text string) ParsedResponse {
	parsed := ParsedResponse{}

	var blocks []string
	for _, match := range codeBlockRe.FindAllStringSubmatch(text, -1) {
		block := strings.TrimRight(match[1], "\n")
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	parsed.Code = strings.Join(blocks, "\n\n")

	// Strip code blocks first so list items inside fences are not counted
	// as suggestions.
	withoutCode := codeBlockRe.ReplaceAllString(text, "")
	for _, match := range suggestionRe.FindAllStringSubmatch(withoutCode, -1) {
		item := strings.TrimSpace(match[1])
		if item != "" {
			parsed.Suggestions = append(parsed.Suggestions, item)
		}
	}

	return parsed
}
