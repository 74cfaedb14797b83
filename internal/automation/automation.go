package automation

import "time"

// Automation is a persisted recurring task definition. Records are created
// disabled in preview; an external scheduler promotes them once ConfirmAt
// passes.
type Automation struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	TaskID        string        `json:"task_id"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Cron          string        `json:"cron"`
	Timezone      string        `json:"timezone"`
	Todos         []Todo        `json:"todos"`
	PreviewConfig PreviewConfig `json:"preview_config"`
	ConfirmAt     time.Time     `json:"confirm_at"`
	LastRunAt     *time.Time    `json:"last_run_at,omitempty"`
	LastRunStatus string        `json:"last_run_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Todo struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

type PreviewConfig struct {
	AutoConfirm           bool `json:"autoConfirm"`
	ConfirmTimeoutSeconds int  `json:"confirmTimeoutSeconds"`
}
