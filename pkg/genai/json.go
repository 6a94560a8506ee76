package genai

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rotisserie/eris"
)

// ErrUnparseable marks a response that holds no recoverable JSON payload.
// Callers treat it as retryable and re-prompt rather than abort.
var ErrUnparseable = eris.New("genai: unparseable response")

// CleanJSON strips markdown code fences and surrounding prose from a raw
// model response, returning the first JSON object or array found.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// DecodeJSON extracts a JSON value from a raw model response and
// unmarshals it into v, repairing minor syntax damage when plain parsing
// fails.
func DecodeJSON(raw string, v any) error {
	data := CleanJSON(raw)
	if data == "" {
		return eris.Wrap(ErrUnparseable, "empty response")
	}

	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}

	fixed, repairErr := jsonrepair.JSONRepair(data)
	if repairErr != nil {
		return eris.Wrap(ErrUnparseable, err.Error())
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return eris.Wrap(ErrUnparseable, err.Error())
	}
	return nil
}
