package types

import (
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the inbound body of POST /v1/chat.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	ModelID  string    `json:"modelId,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatTurn is the request-scoped representation of one user turn.
// TaskID is the idempotency key correlating retries of the same turn.
type ChatTurn struct {
	TaskID            string
	UserID            string
	Messages          []Message
	RequestedModelKey string
	Geo               GeoInfo
	ReceivedAt        time.Time
}

// LastUserMessage returns the content of the most recent user message, or "".
func (t *ChatTurn) LastUserMessage() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleUser {
			return t.Messages[i].Content
		}
	}
	return ""
}

// GeoInfo is the best-effort client location. Zero value means unknown.
type GeoInfo struct {
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Source   string `json:"source,omitempty"`
}

// IsMainland reports whether the client is in mainland China.
func (g GeoInfo) IsMainland() bool {
	return strings.EqualFold(g.Country, "CN")
}
