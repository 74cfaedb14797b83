// Package automation provisions preview automations requested during a chat
// turn. It only creates disabled records; promotion to active execution is
// owned by the scheduler service.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/schedule"
	"github.com/af-corp/persona-assistant/internal/telemetry"
	"github.com/af-corp/persona-assistant/internal/types"
	"github.com/google/uuid"
)

// Schedule sources.
const (
	SourceExplicit = "explicit"
	SourceInferred = "inferred"
)

const genericNameRunes = 24

const defaultStoreTimeout = 5 * time.Second

var defaultChecklist = []string{
	"Collect the latest updates from your sources",
	"Filter for relevance and remove duplicates",
	"Summarize the key points",
	"Deliver the results to you",
}

// Request carries what the provisioner needs from one turn.
type Request struct {
	TaskID   string
	UserID   string
	UserText string
	Geo      types.GeoInfo
	Envelope *types.ResponseEnvelope
}

// Outcome describes a provisioned automation.
type Outcome struct {
	Automation *Automation
	Created    bool
	Source     string
}

// Plan is the resolved automation definition before persistence.
type Plan struct {
	Name     string
	Cron     string
	Timezone string
	Source   string
}

// Provisioner decides whether a turn qualifies and persists the preview.
type Provisioner struct {
	store        Store
	cfg          func() config.AutomationConfig
	storeTimeout time.Duration
	metrics      *telemetry.Metrics
	now          func() time.Time
}

func NewProvisioner(store Store, cfg func() config.AutomationConfig, storeTimeout time.Duration, metrics *telemetry.Metrics) *Provisioner {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Provisioner{store: store, cfg: cfg, storeTimeout: storeTimeout, metrics: metrics, now: time.Now}
}

// Decide resolves a plan from the model's directive and the inferencer.
// The inferencer is consulted only when the model emitted a directive; it
// fills a missing cron and also satisfies the auto-create condition.
func Decide(directive *types.AutomationDirective, userText string, geo types.GeoInfo) (Plan, bool) {
	if directive == nil {
		return Plan{}, false
	}

	inferred, matched := schedule.Infer(userText)
	if !directive.AutoCreate && !matched {
		return Plan{}, false
	}

	plan := Plan{Source: SourceExplicit}
	switch {
	case schedule.ValidCron(directive.Cron):
		plan.Cron = directive.Cron
	case matched:
		plan.Cron = inferred.Cron
		plan.Source = SourceInferred
	default:
		return Plan{}, false
	}

	plan.Name = resolveName(directive, userText)
	if plan.Name == "" {
		return Plan{}, false
	}

	switch {
	case validZone(directive.Timezone):
		plan.Timezone = directive.Timezone
	case matched:
		plan.Timezone = inferred.Timezone
	case validZone(geo.Timezone):
		plan.Timezone = geo.Timezone
	default:
		plan.Timezone = "UTC"
	}
	return plan, true
}

// Provision creates a preview automation when the turn qualifies and appends
// the confirmation notice to the envelope reply. It returns nil when the turn
// does not qualify.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Outcome, error) {
	if req.Envelope == nil {
		return nil, nil
	}
	plan, ok := Decide(req.Envelope.Automation, req.UserText, req.Geo)
	if !ok {
		return nil, nil
	}

	timeout := p.cfg().ConfirmTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	now := p.now().UTC()

	a := &Automation{
		ID:       uuid.NewString(),
		UserID:   req.UserID,
		TaskID:   req.TaskID,
		Name:     plan.Name,
		Enabled:  false,
		Cron:     plan.Cron,
		Timezone: plan.Timezone,
		Todos:    seedTodos(req.Envelope.TaskPlan),
		PreviewConfig: PreviewConfig{
			AutoConfirm:           true,
			ConfirmTimeoutSeconds: int(timeout / time.Second),
		},
		ConfirmAt: now.Add(timeout),
		CreatedAt: now,
		UpdatedAt: now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	stored, created, err := p.store.Insert(storeCtx, a)
	if err != nil {
		p.record(plan.Source, "failed")
		return nil, fmt.Errorf("provision automation: %w", err)
	}
	if created {
		p.record(plan.Source, "created")
	} else {
		p.record(plan.Source, "existing")
	}

	slog.Info("preview automation provisioned",
		"task_id", req.TaskID,
		"automation_id", stored.ID,
		"created", created,
		"cron", stored.Cron,
		"timezone", stored.Timezone,
		"source", plan.Source,
	)

	req.Envelope.Reply = AppendNotice(req.Envelope.Reply, stored, req.UserText)
	return &Outcome{Automation: stored, Created: created, Source: plan.Source}, nil
}

func (p *Provisioner) record(source, result string) {
	if p.metrics != nil {
		p.metrics.RecordAutomation(source, result)
	}
}

func resolveName(d *types.AutomationDirective, userText string) string {
	if d.Name != "" {
		return d.Name
	}
	switch strings.ToLower(d.Kind) {
	case "news_digest", "ai_news", "ai_news_digest":
		return "AI news digest"
	case "competitor_monitor", "competitor":
		if d.Target != "" {
			return "Competitor monitor: " + d.Target
		}
		return "Competitor monitor"
	}
	return truncateRunes(strings.Join(strings.Fields(userText), " "), genericNameRunes)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func seedTodos(plan []types.PlanItem) []Todo {
	todos := make([]Todo, 0, max(len(plan), len(defaultChecklist)))
	for _, item := range plan {
		todos = append(todos, Todo{Title: item.Title, Status: types.StatusPending})
	}
	if len(todos) > 0 {
		return todos
	}
	for _, title := range defaultChecklist {
		todos = append(todos, Todo{Title: title, Status: types.StatusPending})
	}
	return todos
}

func validZone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

var noticeMarkers = []string{"auto-confirm", "auto confirm", "confirmed automatically", "automatically confirm", "自动确认"}

// AppendNotice adds a one-time auto-confirm notice unless the reply already
// mentions it. Chinese user text gets a Chinese notice.
func AppendNotice(reply string, a *Automation, userText string) string {
	lower := strings.ToLower(reply)
	for _, m := range noticeMarkers {
		if strings.Contains(lower, m) {
			return reply
		}
	}

	secs := a.PreviewConfig.ConfirmTimeoutSeconds
	var notice string
	if containsHan(userText) {
		notice = fmt.Sprintf("已为你创建自动化任务「%s」（%s，%s），将在 %d 秒后自动确认，如需取消请在此之前操作。", a.Name, a.Cron, a.Timezone, secs)
	} else {
		notice = fmt.Sprintf("I've drafted the automation \"%s\" (%s, %s). It will auto-confirm in %d seconds unless you cancel it.", a.Name, a.Cron, a.Timezone, secs)
	}
	if strings.TrimSpace(reply) == "" {
		return notice
	}
	return reply + "\n\n" + notice
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
