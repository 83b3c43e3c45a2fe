// -----------------------------------------------------------------------
// LLM Output Parsing - Fence stripping and truncated-JSON repair
// -----------------------------------------------------------------------

package audit

import (
	"encoding/json"
	"strings"
)

// extractJSON extracts JSON from an LLM response, handling markdown code
// blocks and surrounding prose
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		lines := strings.Split(response, "\n")
		var jsonLines []string
		inCodeBlock := false

		for _, line := range lines {
			if strings.HasPrefix(line, "```") {
				if inCodeBlock {
					break
				}
				inCodeBlock = true
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}

		if len(jsonLines) > 0 {
			return strings.Join(jsonLines, "\n")
		}
	}

	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx >= 0 && endIdx > startIdx {
		return response[startIdx : endIdx+1]
	}

	return response
}

// repairTruncatedJSON attempts to fix JSON that was truncated mid-stream.
// This handles cases where LLM output was cut off before completion.
// The partial trailing element is dropped whole and the remaining open
// structures are closed.
func repairTruncatedJSON(jsonStr string) string {
	var test interface{}
	if json.Unmarshal([]byte(jsonStr), &test) == nil {
		return jsonStr
	}

	// Each open container remembers where its last complete element
	// ended, so the cut never keeps a fragment of the element that was
	// in flight when the stream stopped.
	type openContainer struct {
		opener   rune
		boundary int
	}

	var stack []openContainer
	inString := false
	escaped := false

	for i, ch := range jsonStr {
		if escaped {
			escaped = false
			continue
		}

		if ch == '\\' && inString {
			escaped = true
			continue
		}

		if ch == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch ch {
		case '{', '[':
			stack = append(stack, openContainer{opener: ch, boundary: i + 1})
		case '}':
			if len(stack) > 0 && stack[len(stack)-1].opener == '{' {
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					stack[len(stack)-1].boundary = i + 1
				}
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1].opener == '[' {
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					stack[len(stack)-1].boundary = i + 1
				}
			}
		case ',':
			if len(stack) > 0 {
				stack[len(stack)-1].boundary = i
			}
		}
	}

	if len(stack) == 0 {
		return jsonStr
	}

	// Cut at the innermost open array so a half-emitted object survives
	// as nothing rather than as a fact with missing fields. With no
	// array open, cut inside the innermost object instead.
	cutDepth := len(stack)
	for d := len(stack); d >= 1; d-- {
		if stack[d-1].opener == '[' {
			cutDepth = d
			break
		}
	}

	repaired := strings.TrimRight(jsonStr[:stack[cutDepth-1].boundary], " \t\r\n")
	repaired = strings.TrimSuffix(repaired, ",")
	for d := cutDepth - 1; d >= 0; d-- {
		if stack[d].opener == '{' {
			repaired += "}"
		} else {
			repaired += "]"
		}
	}

	return repaired
}

// decodeLLMJSON unmarshals an LLM response into target, stripping fences
// and repairing truncation before giving up
func decodeLLMJSON(response string, target interface{}) error {
	jsonStr := extractJSON(response)
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		repaired := repairTruncatedJSON(jsonStr)
		if repaired == jsonStr {
			return err
		}
		return json.Unmarshal([]byte(repaired), target)
	}
	return nil
}
