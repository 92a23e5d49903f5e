package types

import "time"

// ConvState is a state of the dialogue state machine.
type ConvState string

const (
	StateIdle       ConvState = "idle"
	StateClarifying ConvState = "clarifying"
	StatePlanning   ConvState = "planning"
	StateReviewing  ConvState = "reviewing"
	StateEditing    ConvState = "editing"
	StateExecuting  ConvState = "executing"
	StateComplete   ConvState = "complete"
	StateError      ConvState = "error"
)

// Intent is the classified purpose of a user turn.
type Intent string

const (
	IntentConfirm  Intent = "confirm"
	IntentCancel   Intent = "cancel"
	IntentEdit     Intent = "edit"
	IntentNewTopic Intent = "new_topic"
	IntentChat     Intent = "chat"
	IntentOther    Intent = "other"
)

// MessageRole tags who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is immutable once appended to a conversation.
type Message struct {
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MaxConversationMessages bounds the message ring.
const MaxConversationMessages = 50

// Clarification is the pending round-trip stored on a conversation while in
// the clarifying state.
type Clarification struct {
	OriginalQuery string   `json:"original_query"`
	Understanding string   `json:"understanding,omitempty"`
	SubQueries    []string `json:"sub_queries,omitempty"`
	Questions     []string `json:"questions,omitempty"`
	Language      string   `json:"language,omitempty"`
}

// Conversation is the working-memory aggregate, mutated only by the dialogue
// orchestrator. PendingPlan and CurrentRequest are transient: they are not
// serialized with the snapshot and come back nil after a KV round-trip.
type Conversation struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Messages      []Message      `json:"messages"`
	State         ConvState      `json:"state"`
	Topic         string         `json:"topic,omitempty"`
	Language      string         `json:"language,omitempty"`
	Clarifying    *Clarification `json:"clarification,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	PendingURLs   []string       `json:"pending_urls,omitempty"`
	ResultSummary string         `json:"result_summary,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	PendingPlan    *AdaptivePlan    `json:"-"`
	CurrentRequest *ResearchRequest `json:"-"`
}

// Append adds a message and trims the ring to the last
// MaxConversationMessages entries.
func (c *Conversation) Append(role MessageRole, content string) {
	c.Messages = append(c.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(c.Messages) > MaxConversationMessages {
		c.Messages = c.Messages[len(c.Messages)-MaxConversationMessages:]
	}
	c.UpdatedAt = time.Now()
}

// AddURLs merges newly extracted URLs into the pending list, deduplicated.
func (c *Conversation) AddURLs(urls []string) {
	seen := make(map[string]bool, len(c.PendingURLs))
	for _, u := range c.PendingURLs {
		seen[u] = true
	}
	for _, u := range urls {
		if !seen[u] {
			c.PendingURLs = append(c.PendingURLs, u)
			seen[u] = true
		}
	}
}
