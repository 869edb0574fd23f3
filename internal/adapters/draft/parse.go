package draft

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/bnema/forum-agent/internal/domain"
)

// ParseObject extracts the first JSON object from a model answer. Code fences
// and any prose around the outermost braces are ignored.
func ParseObject(text string) (map[string]any, error) {
	trimmed := stripFences(text)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json object in answer", domain.ErrDraftInvalid)
	}

	dec := json.NewDecoder(strings.NewReader(trimmed[start : end+1]))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDraftInvalid, err)
	}
	return obj, nil
}

func stripFences(text string) string {
	out := strings.TrimSpace(text)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if nl := strings.IndexByte(out, '\n'); nl >= 0 {
		out = out[nl+1:]
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

func stringField(obj map[string]any, key string) string {
	return strings.TrimSpace(cast.ToString(obj[key]))
}

// boolField accepts real booleans as well as "true"/"1" style strings.
func boolField(obj map[string]any, key string) bool {
	switch v := obj[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return err == nil && n != 0
	default:
		return cast.ToBool(v)
	}
}

func int64Field(obj map[string]any, key string) (int64, bool) {
	switch v := obj[key].(type) {
	case nil:
		return 0, false
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		n, err := cast.ToInt64E(strings.TrimSpace(cast.ToString(v)))
		return n, err == nil
	}
}
