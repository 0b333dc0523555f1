package agent

import (
	"encoding/json"
	"strings"
)

// ActionKind enumerates the decisions an LLM response can carry.
type ActionKind string

const (
	ActionDelegate       ActionKind = "DELEGATE"
	ActionUseTool        ActionKind = "USE_TOOL"
	ActionRequestNewTool ActionKind = "REQUEST_NEW_TOOL"
	ActionComplete       ActionKind = "COMPLETE"
	ActionFail           ActionKind = "FAIL"
	ActionParseError     ActionKind = "PARSE_ERROR"
)

// Action is the parsed form of one LLM decision. Raw keeps the original
// text for diagnostics.
type Action struct {
	Kind      ActionKind
	Reasoning string
	Raw       string

	// USE_TOOL
	Tool       string
	Parameters map[string]any

	// DELEGATE
	Role               string
	Task               string
	CompletionCriteria *Criteria
	StepIndex          int // -1 when the action carries none

	// REQUEST_NEW_TOOL
	Description string
}

// Criteria is a completion condition: an agent completes once its history
// holds a non-error record matching all three fields.
type Criteria struct {
	Action     string         `json:"action"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// Matches checks a history record against the criteria: equality on action
// and tool, ordered structural equality on parameters (canonical JSON, no
// numeric tolerance).
func (c *Criteria) Matches(r Record) bool {
	if r.Error != "" {
		return false
	}
	return strings.EqualFold(r.Action, c.Action) &&
		r.Tool == c.Tool &&
		jsonEqual(r.Parameters, c.Parameters)
}

func jsonEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	// encoding/json marshals map keys in sorted order, which gives a
	// canonical form for comparison.
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

// ParseAction extracts the decision from raw LLM output. Parsing is
// tolerant: it scans for the outermost {...}, accepts `tool` as a string or
// as an object with a name, and looks for `parameters` both at top level
// and under `details`. Anything unparseable becomes a ParseError action
// counted against the error budget.
func ParseAction(raw string) Action {
	obj, ok := outerJSONObject(raw)
	if !ok {
		return Action{Kind: ActionParseError, Raw: raw}
	}

	action := Action{Raw: raw, StepIndex: -1}
	action.Reasoning, _ = obj["reasoning"].(string)

	kind := strings.ToUpper(strings.TrimSpace(stringField(obj, "action")))
	details, _ := obj["details"].(map[string]any)

	switch ActionKind(kind) {
	case ActionComplete:
		action.Kind = ActionComplete
	case ActionFail:
		action.Kind = ActionFail
	case ActionUseTool:
		action.Kind = ActionUseTool
		action.Tool = toolName(obj, details)
		action.Parameters = parameters(obj, details)
		if action.Tool == "" {
			return Action{Kind: ActionParseError, Raw: raw, Reasoning: action.Reasoning}
		}
	case ActionDelegate:
		action.Kind = ActionDelegate
		src := details
		if src == nil {
			src = obj
		}
		action.Role = stringField(src, "role")
		action.Task = stringField(src, "task")
		action.CompletionCriteria = criteriaField(src)
		if idx, ok := numberField(src, "step_index"); ok {
			action.StepIndex = int(idx)
		}
		if action.Role == "" || action.Task == "" {
			return Action{Kind: ActionParseError, Raw: raw, Reasoning: action.Reasoning}
		}
	case ActionRequestNewTool:
		action.Kind = ActionRequestNewTool
		action.Description = stringField(obj, "description")
		if action.Description == "" && details != nil {
			action.Description = stringField(details, "description")
		}
		if action.Description == "" {
			return Action{Kind: ActionParseError, Raw: raw, Reasoning: action.Reasoning}
		}
	default:
		return Action{Kind: ActionParseError, Raw: raw, Reasoning: action.Reasoning}
	}

	return action
}

// outerJSONObject finds and parses the outermost {...} span in s.
func outerJSONObject(s string) (map[string]any, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	n, ok := m[key].(float64)
	return n, ok
}

// toolName accepts "tool": "x" and "tool": {"name": "x"}, at top level or
// under details.
func toolName(obj, details map[string]any) string {
	for _, m := range []map[string]any{obj, details} {
		if m == nil {
			continue
		}
		switch v := m["tool"].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if name := stringField(v, "name"); name != "" {
				return name
			}
		}
	}
	return ""
}

func parameters(obj, details map[string]any) map[string]any {
	if p, ok := obj["parameters"].(map[string]any); ok {
		return p
	}
	if details != nil {
		if p, ok := details["parameters"].(map[string]any); ok {
			return p
		}
	}
	return map[string]any{}
}

// criteriaField decodes details.completion_criteria when present.
func criteriaField(m map[string]any) *Criteria {
	raw, ok := m["completion_criteria"].(map[string]any)
	if !ok {
		return nil
	}
	c := &Criteria{
		Action:     strings.ToUpper(stringField(raw, "action")),
		Tool:       toolName(raw, nil),
		Parameters: map[string]any{},
	}
	if p, ok := raw["parameters"].(map[string]any); ok {
		c.Parameters = p
	}
	return c
}
