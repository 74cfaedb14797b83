package contract

import (
	"fmt"
	"strings"
	"testing"
)

func TestParse_FencedJSONWithProse(t *testing.T) {
	env := Parse("Sure! ```json\n{\"reply\":\"hi\"}\n```")
	if env.Reply != "hi" {
		t.Errorf("expected reply 'hi', got %q", env.Reply)
	}
}

func TestParse_PlainText(t *testing.T) {
	env := Parse("  just text, no json  ")
	if env.Reply != "just text, no json" {
		t.Errorf("unexpected reply %q", env.Reply)
	}
	if env.Automation != nil || len(env.TaskPlan) != 0 {
		t.Error("plain text must not yield structure")
	}
}

func TestParse_EmptyContentPlaceholder(t *testing.T) {
	if env := Parse(""); env.Reply != NoReplyPlaceholder {
		t.Errorf("expected placeholder, got %q", env.Reply)
	}
	if env := Parse("   \n"); env.Reply != NoReplyPlaceholder {
		t.Errorf("expected placeholder, got %q", env.Reply)
	}
}

func TestParse_MissingReplyFallsBackToRaw(t *testing.T) {
	raw := `{"thinking_steps":[{"label":"look"}]}`
	env := Parse(raw)
	if env.Reply != raw {
		t.Errorf("expected raw content as reply, got %q", env.Reply)
	}
	if len(env.ThinkingSteps) != 1 {
		t.Errorf("expected thinking steps to still be parsed, got %+v", env.ThinkingSteps)
	}
}

func TestParse_MalformedJSONFallsBackToRaw(t *testing.T) {
	raw := `Here: {"reply": "oops", }`
	env := Parse(raw)
	if env.Reply != raw {
		t.Errorf("expected raw reply, got %q", env.Reply)
	}
}

func TestParse_PlaceholderPlanDropped(t *testing.T) {
	env := Parse(`{"reply":"ok","task_plan":[{"title":"Understand Requirements and Constraints","status":"pending"}]}`)
	if len(env.TaskPlan) != 0 {
		t.Errorf("expected empty plan, got %+v", env.TaskPlan)
	}
}

func TestParse_TaskPlanCapsAndStatus(t *testing.T) {
	var items []string
	for i := 0; i < 15; i++ {
		items = append(items, fmt.Sprintf(`{"title":"step %d","status":"in_progress"}`, i))
	}
	items = append([]string{`{"title":"first","status":"bogus"}`, `{"title":"  "}`}, items...)
	env := Parse(`{"reply":"ok","task_plan":[` + strings.Join(items, ",") + `]}`)

	if len(env.TaskPlan) != maxPlanItems {
		t.Fatalf("expected %d plan items, got %d", maxPlanItems, len(env.TaskPlan))
	}
	if env.TaskPlan[0].Title != "first" || env.TaskPlan[0].Status != "" {
		t.Errorf("expected invalid status to be dropped, got %+v", env.TaskPlan[0])
	}
	if env.TaskPlan[1].Status != "in_progress" {
		t.Errorf("expected in_progress, got %q", env.TaskPlan[1].Status)
	}
}

func TestParse_ThinkingStepsCapAndLabels(t *testing.T) {
	var items []string
	items = append(items, `{"label":""}`, `"not an object"`)
	for i := 0; i < 25; i++ {
		items = append(items, fmt.Sprintf(`{"label":"s%d"}`, i))
	}
	env := Parse(`{"reply":"ok","thinking_steps":[` + strings.Join(items, ",") + `]}`)
	if len(env.ThinkingSteps) != maxThinkingSteps {
		t.Fatalf("expected %d steps, got %d", maxThinkingSteps, len(env.ThinkingSteps))
	}
	if env.ThinkingSteps[0].Label != "s0" {
		t.Errorf("expected empty labels skipped, got %q", env.ThinkingSteps[0].Label)
	}
}

func TestParse_Automation(t *testing.T) {
	env := Parse(`{"reply":"Will do","automation":{"auto_create":"true","kind":"competitor_monitor","target":"acme","cron":"0 9 * * *"}}`)
	if env.Automation == nil {
		t.Fatal("expected automation directive")
	}
	a := env.Automation
	if !a.AutoCreate || a.Kind != "competitor_monitor" || a.Target != "acme" || a.Cron != "0 9 * * *" {
		t.Errorf("unexpected directive %+v", a)
	}

	if env := Parse(`{"reply":"x","automation":null}`); env.Automation != nil {
		t.Error("null automation should be nil")
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"simple", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `pre {"a":{"b":2}} post {"c":3}`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"}\" ok"} tail`, `{"a":"say \"}\" ok"}`, true},
		{"escaped backslash", `{"a":"c:\\"} x`, `{"a":"c:\\"}`, true},
		{"unbalanced", `{"a":{"b":1}`, ``, false},
		{"no object", `hello`, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}
