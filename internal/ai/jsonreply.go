package ai

import (
	"bytes"
	"errors"
	"strings"
)

var errNoJSON = errors.New("ai: reply contains no JSON object")

// jsonObject cuts the first top-level JSON object out of a model reply,
// tolerating markdown fences and chatter around it.
func jsonObject(reply string) ([]byte, error) {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	return bytes.TrimSpace([]byte(s[start : end+1])), nil
}
