package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a response holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// reasoningBlock matches a leading <think>...</think> block emitted by
// reasoning models before their answer.
var reasoningBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>`)

// ExtractJSON returns the first complete JSON object in a model response.
// Reasoning blocks, markdown fences and surrounding prose are skipped. A
// candidate that does not decode is passed over, so a stray brace in prose
// does not hide the object after it.
func ExtractJSON(response string) (string, error) {
	s := reasoningBlock.ReplaceAllString(response, "")

	for i := strings.IndexByte(s, '{'); i >= 0; {
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&obj); err == nil {
			return string(obj), nil
		}
		next := strings.IndexByte(s[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", ErrNoJSON
}
