// Package parser owns the textual tool-call grammar used by providers
// without native tool calling. Backends are prompted to emit
//
//	<tool_call>{"name": "tool_name", "args": {...}}</tool_call>
//
// blocks; this package extracts them into the same ToolCall shape native
// providers return, so nothing above the provider boundary can tell the
// difference.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"hearth/internal/agent/ports"
)

type parser struct{}

// New returns the default function call parser.
func New() ports.FunctionCallParser {
	return &parser{}
}

var (
	toolCallPattern = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

	// Markers occasionally leaked by small models around tool calls.
	leakedMarkerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`<\|tool_call_begin\|>.*?(?:<\|tool_call_end\|>|$)`),
		regexp.MustCompile(`functions\.[\w_]+:\d+\(.*?\)`),
	}
)

// Parse extracts tool calls from content. A content block that contains
// tool-call markers but yields no parseable call is a malformed response
// and returns an error so the provider layer can surface it.
func (p *parser) Parse(content string) ([]ports.ToolCall, error) {
	cleaned := cleanLeakedMarkers(content)

	matches := toolCallPattern.FindAllStringSubmatch(cleaned, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	var calls []ports.ToolCall
	for _, match := range matches {
		call, ok := parseToolCallBody(match[1])
		if !ok {
			continue
		}
		call.ID = fmt.Sprintf("call_%d", len(calls))
		calls = append(calls, call)
	}

	if len(calls) == 0 {
		return nil, fmt.Errorf("content contains %d tool_call block(s) but none parsed", len(matches))
	}
	return calls, nil
}

// Strip removes tool call blocks and leaked markers, leaving the prose the
// model addressed to the user.
func (p *parser) Strip(content string) string {
	cleaned := cleanLeakedMarkers(content)
	cleaned = toolCallPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func parseToolCallBody(body string) (ports.ToolCall, bool) {
	var call struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}

	raw := strings.TrimSpace(body)
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		// Small models emit almost-JSON; repair before giving up.
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return ports.ToolCall{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &call); err != nil {
			return ports.ToolCall{}, false
		}
	}

	if !toolNamePattern.MatchString(call.Name) {
		return ports.ToolCall{}, false
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return ports.ToolCall{Name: call.Name, Arguments: args}, true
}

func cleanLeakedMarkers(content string) string {
	cleaned := content
	for _, pattern := range leakedMarkerPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	return cleaned
}
