package types

// Task plan statuses accepted from the model.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ResponseEnvelope is the structured contract extracted from model output.
// Reply is never empty once produced by the contract parser.
type ResponseEnvelope struct {
	Reply         string               `json:"reply"`
	ThinkingSteps []ThinkingStep       `json:"thinking_steps"`
	TaskPlan      []PlanItem           `json:"task_plan"`
	Automation    *AutomationDirective `json:"automation,omitempty"`
}

type ThinkingStep struct {
	Label string `json:"label"`
}

type PlanItem struct {
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
}

// AutomationDirective asks for a recurring automation to be provisioned.
type AutomationDirective struct {
	AutoCreate bool   `json:"auto_create"`
	Name       string `json:"name,omitempty"`
	Cron       string `json:"cron,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Target     string `json:"target,omitempty"`
}

// ReplyMeta is embedded in the client-facing reply after MetaDelimiter.
type ReplyMeta struct {
	TaskID        string          `json:"task_id"`
	ThinkingSteps []ThinkingStep  `json:"thinking_steps"`
	TaskPlan      []PlanItem      `json:"task_plan"`
	Automation    *AutomationMeta `json:"automation,omitempty"`
}

// AutomationMeta describes a provisioned preview automation to the client.
type AutomationMeta struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Cron                  string `json:"cron"`
	Timezone              string `json:"timezone"`
	ConfirmTimeoutSeconds int    `json:"confirm_timeout_seconds"`
	ConfirmAt             string `json:"confirm_at"`
}

// MetaDelimiter separates the visible reply from the metadata JSON.
const MetaDelimiter = "\n\n<!--persona:meta-->\n"
