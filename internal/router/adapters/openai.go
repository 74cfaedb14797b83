package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/types"
)

const maxResponseBytes = 4 << 20

// OpenAIGateway calls OpenAI-compatible /chat/completions endpoints.
type OpenAIGateway struct {
	cfg    func() config.UpstreamConfig
	client *http.Client
}

func NewOpenAIGateway(cfg func() config.UpstreamConfig, client *http.Client) *OpenAIGateway {
	return &OpenAIGateway{cfg: cfg, client: client}
}

// NewHTTPClient builds the shared upstream client. Per-attempt deadlines are
// applied through the request context.
func NewHTTPClient(cfg config.UpstreamConfig) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConns,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

func (g *OpenAIGateway) Complete(ctx context.Context, cand types.ModelCandidate, messages []types.Message) (*Completion, error) {
	if cand.APIKey == "" {
		return nil, &UpstreamError{Kind: FailureTransport, Retryable: true, Err: fmt.Errorf("candidate %s has no api key", cand.ID)}
	}

	cfg := g.cfg()
	baseURL := cand.BaseURL
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}

	data, err := json.Marshal(openAIRequestBody{Model: cand.ModelID, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	attemptCtx := ctx
	if cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		defer cancel()
	}

	url := strings.TrimRight(baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cand.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Kind: FailureTransport, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Kind: FailureTransport, Retryable: true, Err: fmt.Errorf("read openai response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(body)
		return nil, &UpstreamError{
			Kind:       FailureStatus,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Retryable:  IsRetryableStatus(resp.StatusCode, msg),
		}
	}

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return nil, &UpstreamError{Kind: FailureTransport, Retryable: true, Err: fmt.Errorf("unmarshal openai response: %w", err)}
	}

	completion := &Completion{
		Raw:        json.RawMessage(body),
		Model:      oaiResp.Model,
		StatusCode: resp.StatusCode,
	}
	if len(oaiResp.Choices) > 0 {
		completion.Content = oaiResp.Choices[0].Message.Content.Text()
	}
	return completion, nil
}

// errorMessage extracts error.message from an upstream error body, falling
// back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && len(e.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(e.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil && s != "" {
			return s
		}
	}
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

type openAIRequestBody struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string         `json:"role"`
			Content messageContent `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// messageContent accepts either a string or an array of {text} parts.
type messageContent struct {
	text string
}

func (c *messageContent) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.text)
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("unsupported message content: %w", err)
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	c.text = sb.String()
	return nil
}

func (c messageContent) Text() string { return c.text }
