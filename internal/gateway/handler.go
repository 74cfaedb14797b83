package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/persona-assistant/internal/auth"
	"github.com/af-corp/persona-assistant/internal/automation"
	"github.com/af-corp/persona-assistant/internal/billing"
	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/contract"
	"github.com/af-corp/persona-assistant/internal/httputil"
	"github.com/af-corp/persona-assistant/internal/router"
	"github.com/af-corp/persona-assistant/internal/router/adapters"
	"github.com/af-corp/persona-assistant/internal/telemetry"
	"github.com/af-corp/persona-assistant/internal/types"
)

// Turn statuses reported to metrics.
const (
	statusOK         = "ok"
	statusBadRequest = "bad_request"
	statusNoBackend  = "no_candidates"
	statusRejected   = "upstream_rejected"
	statusExhausted  = "upstream_exhausted"
)

const maxBodyBytes = 4 << 20

const badRequestMessage = "Invalid chat request"

// GeoLocator resolves the client location; satisfied by *geo.Resolver.
type GeoLocator interface {
	Resolve(ctx context.Context, r *http.Request) types.GeoInfo
}

// Handler holds dependencies for the assistant HTTP handlers.
type Handler struct {
	geo          GeoLocator
	candidates   *router.CandidateResolver
	orchestrator *router.Orchestrator
	provisioner  *automation.Provisioner
	ledger       *billing.Ledger
	cfg          func() *config.Config
	metrics      *telemetry.Metrics
}

// Deps groups the collaborators of a Handler.
type Deps struct {
	Geo          GeoLocator
	Candidates   *router.CandidateResolver
	Orchestrator *router.Orchestrator
	Provisioner  *automation.Provisioner
	Ledger       *billing.Ledger
	Config       func() *config.Config
	Metrics      *telemetry.Metrics
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		geo:          d.Geo,
		candidates:   d.Candidates,
		orchestrator: d.Orchestrator,
		provisioner:  d.Provisioner,
		ledger:       d.Ledger,
		cfg:          d.Config,
		metrics:      d.Metrics,
	}
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get(headerRequestID)
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.rejectRequest(w, reqID, authInfo.UserID, "failed to read request body", err, receivedAt)
		return
	}
	defer r.Body.Close()

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.rejectRequest(w, reqID, authInfo.UserID, "malformed request body", err, receivedAt)
		return
	}
	if err := validate(req.Messages, h.cfg().Chat); err != nil {
		h.rejectRequest(w, reqID, authInfo.UserID, "invalid chat request", err, receivedAt)
		return
	}

	// The turn runs to completion even if the client goes away, so a
	// successful upstream call is always billed and provisioned.
	ctx := context.WithoutCancel(r.Context())

	turn := &types.ChatTurn{
		TaskID:            reqID,
		UserID:            authInfo.UserID,
		Messages:          req.Messages,
		RequestedModelKey: req.ModelID,
		Geo:               h.geo.Resolve(ctx, r),
		ReceivedAt:        receivedAt,
	}

	keys := h.candidates.Keys(turn.RequestedModelKey, turn.Geo.IsMainland())
	result, err := h.orchestrator.Run(ctx, turn.TaskID, keys, turn.Messages)
	if err != nil {
		h.writeRunError(w, turn, keys, result, err)
		return
	}

	envelope := contract.Parse(result.Completion.Content)

	var automationMeta *types.AutomationMeta
	if h.provisioner != nil {
		out, err := h.provisioner.Provision(ctx, automation.Request{
			TaskID:   turn.TaskID,
			UserID:   turn.UserID,
			UserText: turn.LastUserMessage(),
			Geo:      turn.Geo,
			Envelope: &envelope,
		})
		if err != nil {
			slog.Error("automation provisioning failed", "request_id", reqID, "error", err)
		} else if out != nil {
			automationMeta = metaFor(out.Automation)
		}
	}

	var creditsUsed int64
	if h.ledger != nil {
		charge, err := h.ledger.Charge(ctx, billing.Charge{TaskID: turn.TaskID, UserID: turn.UserID, ModelID: result.Candidate.ID})
		if err != nil {
			slog.Error("billing failed", "request_id", reqID, "user_id", turn.UserID, "billed", charge.Billed, "error", err)
		}
		if charge.Billed {
			creditsUsed = charge.Cost
		}
	}

	content, err := renderContent(envelope, types.ReplyMeta{
		TaskID:        turn.TaskID,
		ThinkingSteps: envelope.ThinkingSteps,
		TaskPlan:      envelope.TaskPlan,
		Automation:    automationMeta,
	})
	if err != nil {
		slog.Error("failed to render reply", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID)
		return
	}

	resp, err := buildResponse(result.Completion, content, turn.TaskID, creditsUsed)
	if err != nil {
		slog.Error("failed to build response", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID)
		return
	}

	duration := time.Since(receivedAt)
	slog.Info("turn completed",
		"request_id", reqID,
		"user_id", turn.UserID,
		"model_requested", turn.RequestedModelKey,
		"candidate", result.Candidate.ID,
		"model_served", result.Candidate.ModelID,
		"attempts", len(result.Attempts),
		"country", turn.Geo.Country,
		"geo_source", turn.Geo.Source,
		"credits_used", creditsUsed,
		"automation", automationMeta != nil,
		"duration_ms", duration.Milliseconds(),
	)
	h.finish(statusOK, result.Candidate.ID, receivedAt)

	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// rejectRequest logs the validation detail and answers with a fixed 400 body.
func (h *Handler) rejectRequest(w http.ResponseWriter, reqID, userID, reason string, err error, receivedAt time.Time) {
	slog.Warn("chat request rejected", "request_id", reqID, "user_id", userID, "reason", reason, "error", err)
	h.finish(statusBadRequest, "", receivedAt)
	httputil.WriteBadRequestError(w, reqID, badRequestMessage)
}

func (h *Handler) writeRunError(w http.ResponseWriter, turn *types.ChatTurn, keys []types.CandidateKey, result *router.Result, err error) {
	attempts := 0
	if result != nil {
		attempts = len(result.Attempts)
	}
	keyNames := make([]string, len(keys))
	for i, k := range keys {
		keyNames[i] = k.String()
	}

	switch {
	case errors.Is(err, router.ErrNoCandidates):
		slog.Error("no model candidate available",
			"request_id", turn.TaskID, "keys", keyNames, "country", turn.Geo.Country, "error", err)
		h.finish(statusNoBackend, "", turn.ReceivedAt)
		httputil.WriteInternalError(w, turn.TaskID)
	case errors.Is(err, router.ErrUpstreamRejected):
		slog.Error("turn failed: upstream rejected",
			"request_id", turn.TaskID, "keys", keyNames, "attempts", attempts, "error", err)
		h.finish(statusRejected, "", turn.ReceivedAt)
		httputil.WriteUpstreamError(w, turn.TaskID)
	default:
		slog.Error("turn failed: candidates exhausted",
			"request_id", turn.TaskID, "keys", keyNames, "attempts", attempts, "error", err)
		h.finish(statusExhausted, "", turn.ReceivedAt)
		httputil.WriteUpstreamError(w, turn.TaskID)
	}
}

func (h *Handler) finish(status, model string, receivedAt time.Time) {
	if h.metrics != nil {
		h.metrics.RecordTurn(status, model, float64(time.Since(receivedAt).Milliseconds()))
	}
}

// validate rejects message lists the upstream cannot meaningfully answer.
func validate(messages []types.Message, limits config.ChatConfig) error {
	if len(messages) == 0 {
		return errors.New("messages is required")
	}
	if limits.MaxMessages > 0 && len(messages) > limits.MaxMessages {
		return fmt.Errorf("too many messages: %d (max %d)", len(messages), limits.MaxMessages)
	}
	hasUser := false
	for i, m := range messages {
		switch m.Role {
		case types.RoleSystem, types.RoleAssistant:
		case types.RoleUser:
			hasUser = true
		default:
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("messages[%d]: content is required", i)
		}
		if limits.MaxContentBytes > 0 && len(m.Content) > limits.MaxContentBytes {
			return fmt.Errorf("messages[%d]: content exceeds %d bytes", i, limits.MaxContentBytes)
		}
	}
	if !hasUser {
		return errors.New("messages must include a user message")
	}
	return nil
}

func metaFor(a *automation.Automation) *types.AutomationMeta {
	return &types.AutomationMeta{
		ID:                    a.ID,
		Name:                  a.Name,
		Cron:                  a.Cron,
		Timezone:              a.Timezone,
		ConfirmTimeoutSeconds: a.PreviewConfig.ConfirmTimeoutSeconds,
		ConfirmAt:             a.ConfirmAt.UTC().Format(time.RFC3339),
	}
}

// renderContent joins the visible reply and the compact metadata JSON.
func renderContent(env types.ResponseEnvelope, meta types.ReplyMeta) (string, error) {
	if meta.ThinkingSteps == nil {
		meta.ThinkingSteps = []types.ThinkingStep{}
	}
	if meta.TaskPlan == nil {
		meta.TaskPlan = []types.PlanItem{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("encode reply meta: %w", err)
	}
	return env.Reply + types.MetaDelimiter + string(bytes.TrimSpace(buf.Bytes())), nil
}

// buildResponse rewrites the first choice of the upstream body and appends the
// task fields. Numbers are preserved as sent upstream.
func buildResponse(c *adapters.Completion, content, taskID string, creditsUsed int64) ([]byte, error) {
	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(c.Raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		body = map[string]any{"object": "chat.completion", "model": c.Model}
	}

	choices, _ := body["choices"].([]any)
	if len(choices) == 0 {
		choices = []any{map[string]any{"index": 0, "finish_reason": "stop"}}
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		first = map[string]any{"index": 0}
	}
	msg, ok := first["message"].(map[string]any)
	if !ok {
		msg = map[string]any{}
	}
	msg["role"] = types.RoleAssistant
	msg["content"] = content
	first["message"] = msg
	choices[0] = first
	body["choices"] = choices

	body["task_id"] = taskID
	body["credits_used"] = creditsUsed

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return buf.Bytes(), nil
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get(headerRequestID)

	cands, err := h.candidates.Available(r.Context())
	if err != nil {
		slog.Warn("model config store unavailable, listing built-in models", "request_id", reqID, "error", err)
	}

	models := make([]modelObject, 0, len(cands))
	for _, c := range cands {
		models = append(models, modelObject{
			ID:      c.ID,
			Object:  "model",
			Created: 0,
			OwnedBy: "persona",
			Model:   c.ModelID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelListResponse{
		Object: "list",
		Data:   models,
	})
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Model   string `json:"model"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}
