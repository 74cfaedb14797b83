// Package contract extracts the structured response envelope the model is
// prompted to emit. Extraction is best effort: any failure leaves the raw
// model text as the reply.
package contract

import (
	"encoding/json"
	"strings"

	"github.com/af-corp/persona-assistant/internal/types"
)

const (
	maxThinkingSteps = 20
	maxPlanItems     = 12

	// NoReplyPlaceholder is used when the model produced no visible text.
	NoReplyPlaceholder = "(No visible reply was generated.)"
)

// placeholderTitles are generic plan entries models emit when they have no
// real plan. Compared case-insensitively after trimming.
var placeholderTitles = map[string]bool{
	"understand requirements and constraints": true,
	"understand the request":                  true,
	"analyze the request":                     true,
	"analyze requirements":                    true,
	"draft response":                          true,
	"review and finalize":                     true,
}

type rawEnvelope struct {
	Reply         *string         `json:"reply"`
	ThinkingSteps json.RawMessage `json:"thinking_steps"`
	TaskPlan      json.RawMessage `json:"task_plan"`
	Automation    json.RawMessage `json:"automation"`
}

type rawAutomation struct {
	AutoCreate any    `json:"auto_create"`
	Name       string `json:"name"`
	Cron       string `json:"cron"`
	Timezone   string `json:"timezone"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
}

// Parse builds an envelope from upstream content. The returned Reply is never
// empty.
func Parse(content string) types.ResponseEnvelope {
	env := types.ResponseEnvelope{}

	if obj, ok := ExtractJSONObject(content); ok {
		var raw rawEnvelope
		if err := json.Unmarshal([]byte(obj), &raw); err == nil {
			if raw.Reply != nil {
				env.Reply = strings.TrimSpace(*raw.Reply)
			}
			env.ThinkingSteps = parseThinkingSteps(raw.ThinkingSteps)
			env.TaskPlan = parseTaskPlan(raw.TaskPlan)
			env.Automation = parseAutomation(raw.Automation)
		}
	}

	if env.Reply == "" {
		env.Reply = strings.TrimSpace(content)
	}
	if env.Reply == "" {
		env.Reply = NoReplyPlaceholder
	}
	return env
}

// ExtractJSONObject returns the first balanced {...} value in s, honouring
// string literals and escape sequences. It does not validate the slice.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func parseThinkingSteps(data json.RawMessage) []types.ThinkingStep {
	var items []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &items) != nil {
		return nil
	}
	steps := make([]types.ThinkingStep, 0, min(len(items), maxThinkingSteps))
	for _, item := range items {
		if len(steps) == maxThinkingSteps {
			break
		}
		var s struct {
			Label string `json:"label"`
		}
		if json.Unmarshal(item, &s) != nil {
			continue
		}
		if label := strings.TrimSpace(s.Label); label != "" {
			steps = append(steps, types.ThinkingStep{Label: label})
		}
	}
	return steps
}

func parseTaskPlan(data json.RawMessage) []types.PlanItem {
	var items []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &items) != nil {
		return nil
	}
	plan := make([]types.PlanItem, 0, min(len(items), maxPlanItems))
	for _, item := range items {
		if len(plan) == maxPlanItems {
			break
		}
		var p struct {
			Title  string `json:"title"`
			Status string `json:"status"`
		}
		if json.Unmarshal(item, &p) != nil {
			continue
		}
		title := strings.TrimSpace(p.Title)
		if title == "" || IsPlaceholderTitle(title) {
			continue
		}
		plan = append(plan, types.PlanItem{Title: title, Status: normalizeStatus(p.Status)})
	}
	return plan
}

// IsPlaceholderTitle reports whether a plan title is a generic filler entry.
func IsPlaceholderTitle(title string) bool {
	return placeholderTitles[strings.ToLower(strings.TrimSpace(title))]
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case types.StatusPending:
		return types.StatusPending
	case types.StatusInProgress, "in-progress", "in progress":
		return types.StatusInProgress
	case types.StatusCompleted, "done":
		return types.StatusCompleted
	}
	return ""
}

func parseAutomation(data json.RawMessage) *types.AutomationDirective {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var a rawAutomation
	if json.Unmarshal(data, &a) != nil {
		return nil
	}
	return &types.AutomationDirective{
		AutoCreate: truthy(a.AutoCreate),
		Name:       strings.TrimSpace(a.Name),
		Cron:       strings.TrimSpace(a.Cron),
		Timezone:   strings.TrimSpace(a.Timezone),
		Kind:       strings.TrimSpace(a.Kind),
		Target:     strings.TrimSpace(a.Target),
	}
}

// truthy accepts JSON booleans and the string forms models sometimes emit.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}
